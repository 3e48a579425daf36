package gcs

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"time"

	"google.golang.org/api/googleapi"
	gstorage "google.golang.org/api/storage/v1"

	"sceneforge/internal/ports"
)

// Client implements ports.StorageProvider backed by Google Cloud
// Storage. ObjectKey maps directly to the object name within the
// configured bucket.
type Client struct {
	srv    *gstorage.Service
	bucket string

	// Signing identity, taken from the service-account key. When empty
	// the client works but cannot produce signed URLs.
	signerEmail string
	signerKey   *rsa.PrivateKey
}

func NewClient(srv *gstorage.Service, bucket string) *Client {
	return &Client{srv: srv, bucket: bucket}
}

// WithSigner attaches the service-account identity used for signed
// URLs. key is the PEM-encoded private key from the account's JSON
// credentials.
func (c *Client) WithSigner(email string, key []byte) (*Client, error) {
	pk, err := parsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("gcs signer key: %w", err)
	}
	c.signerEmail = email
	c.signerKey = pk
	return c, nil
}

func (c *Client) Provider() string { return "gcs" }

func (c *Client) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	if in.ObjectKey == "" {
		return ports.PutObjectOutput{}, fmt.Errorf("object_key is required")
	}

	obj := &gstorage.Object{Name: in.ObjectKey}
	call := c.srv.Objects.Insert(c.bucket, obj)
	if in.ContentType != "" {
		call = call.Media(in.Reader, googleapi.ContentType(in.ContentType))
	} else {
		call = call.Media(in.Reader)
	}

	created, err := call.Context(ctx).Do()
	if err != nil {
		return ports.PutObjectOutput{}, fmt.Errorf("gcs upload failed: %w", err)
	}

	return ports.PutObjectOutput{ObjectKey: created.Name, Size: in.Size}, nil
}

func (c *Client) GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error) {
	resp, err := c.srv.Objects.Get(c.bucket, objectKey).Context(ctx).Download()
	if err != nil {
		return nil, "", 0, err
	}

	contentType = resp.Header.Get("Content-Type")
	size = resp.ContentLength
	return resp.Body, contentType, size, nil
}

func (c *Client) DeleteObject(ctx context.Context, objectKey string) error {
	return c.srv.Objects.Delete(c.bucket, objectKey).Context(ctx).Do()
}

// GetSignedURL produces a V2-signed download URL. Without a signer the
// URL is empty and callers serve the object through the API.
func (c *Client) GetSignedURL(ctx context.Context, objectKey string, expiresIn time.Duration) (ports.SignedURLOutput, error) {
	expiresAt := time.Now().UTC().Add(expiresIn)
	if c.signerKey == nil {
		return ports.SignedURLOutput{URL: "", ExpiresAt: expiresAt}, nil
	}

	resource := "/" + c.bucket + "/" + objectKey
	toSign := fmt.Sprintf("GET\n\n\n%d\n%s", expiresAt.Unix(), resource)

	sum := sha256.Sum256([]byte(toSign))
	sig, err := rsa.SignPKCS1v15(rand.Reader, c.signerKey, crypto.SHA256, sum[:])
	if err != nil {
		return ports.SignedURLOutput{}, fmt.Errorf("gcs url signing failed: %w", err)
	}

	q := url.Values{}
	q.Set("GoogleAccessId", c.signerEmail)
	q.Set("Expires", strconv.FormatInt(expiresAt.Unix(), 10))
	q.Set("Signature", base64.StdEncoding.EncodeToString(sig))

	return ports.SignedURLOutput{
		URL:       "https://storage.googleapis.com" + resource + "?" + q.Encode(),
		ExpiresAt: expiresAt,
	}, nil
}

func parsePrivateKey(key []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(key)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	if pk, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := pk.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("not an RSA key")
		}
		return rsaKey, nil
	}
	return x509.ParsePKCS1PrivateKey(block.Bytes)
}
