package processor

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"sceneforge/internal/pkg/errors"
	"sceneforge/internal/pkg/logger"
	"sceneforge/internal/ports"
	"sceneforge/internal/render/compiler"
	"sceneforge/internal/render/job"
)

const storageScheme = "storage://"

// AssetFetcher materializes a job's remote assets into a local work
// directory. Local file names are deterministic per source reference,
// so re-fetching a job reuses the same names.
type AssetFetcher struct {
	sp     ports.StorageProvider
	client *http.Client
	log    *logger.Logger
}

func NewAssetFetcher(sp ports.StorageProvider, log *logger.Logger) *AssetFetcher {
	if log == nil {
		log = logger.NewDefault()
	}
	return &AssetFetcher{
		sp:     sp,
		client: &http.Client{Timeout: 5 * time.Minute},
		log:    log.WithComponent("assets"),
	}
}

// Fetch downloads every asset the job references and returns the
// source-reference to local-path map the compiler consumes.
func (f *AssetFetcher) Fetch(ctx context.Context, dir string, j *job.RenderJob) (compiler.AssetMap, error) {
	assets := compiler.AssetMap{}

	fetch := func(kind string, idx int, ref string) error {
		if ref == "" {
			return nil
		}
		if _, ok := assets[ref]; ok {
			return nil
		}
		local, err := f.fetchOne(ctx, dir, localName(kind, idx, ref), ref)
		if err != nil {
			return err
		}
		assets[ref] = local
		return nil
	}

	for i, seg := range j.Images {
		if err := fetch("image", i, seg.SourceRef); err != nil {
			return nil, err
		}
	}
	for i, seg := range j.Videos {
		if err := fetch("video", i, seg.SourceRef); err != nil {
			return nil, err
		}
		if seg.Voiceover != nil {
			if err := fetch("voiceover", i, seg.Voiceover.SourceRef); err != nil {
				return nil, err
			}
		}
	}
	for i, clip := range j.AudioClips {
		if err := fetch("audio", i, clip.SourceRef); err != nil {
			return nil, err
		}
	}

	return assets, nil
}

func (f *AssetFetcher) fetchOne(ctx context.Context, dir, name, ref string) (string, error) {
	dst := filepath.Join(dir, name)

	switch {
	case strings.HasPrefix(ref, storageScheme):
		key := strings.TrimPrefix(ref, storageScheme)
		rc, _, _, err := f.sp.GetObject(ctx, key)
		if err != nil {
			return "", errors.Wrapf(err, "assets.fetch", "storage object %q", key)
		}
		defer rc.Close()
		return dst, writeFile(dst, rc)

	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
		if err != nil {
			return "", errors.Wrapf(err, "assets.fetch", "bad asset url %q", ref)
		}
		resp, err := f.client.Do(req)
		if err != nil {
			return "", errors.Wrapf(err, "assets.fetch", "download %q", ref)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return "", errors.Newf(errors.CodeUnavailable, "download %q: status %d", ref, resp.StatusCode)
		}
		return dst, writeFile(dst, resp.Body)

	default:
		// A plain path is used in place, typically in local runs.
		if _, err := os.Stat(ref); err != nil {
			return "", errors.Validationf("asset %q is neither a URL nor an existing file", ref)
		}
		return ref, nil
	}
}

func writeFile(dst string, r io.Reader) error {
	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(f, r)
	return err
}

// localName builds the deterministic local file name for one asset:
// kind, zero-padded index, the first 8 hex chars of the reference's
// md5, and the reference's extension.
func localName(kind string, idx int, ref string) string {
	sum := md5.Sum([]byte(ref))
	return fmt.Sprintf("%s_%03d_%s%s", kind, idx, hex.EncodeToString(sum[:])[:8], refExt(kind, ref))
}

func refExt(kind, ref string) string {
	cleaned := ref
	if u, err := url.Parse(ref); err == nil && u.Path != "" {
		cleaned = u.Path
	}
	if ext := path.Ext(cleaned); ext != "" && len(ext) <= 5 {
		return ext
	}
	switch kind {
	case "image":
		return ".jpg"
	case "video":
		return ".mp4"
	default:
		return ".mp3"
	}
}
