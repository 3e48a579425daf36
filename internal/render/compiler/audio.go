package compiler

import (
	"fmt"
	"strings"

	"sceneforge/internal/render/graph"
	"sceneforge/internal/render/job"
)

// Fixed normalization target for concatenating embedded audio streams.
// Concat requires identical sample format, rate and layout across inputs.
const audioFormat = "aformat=sample_fmts=fltp:sample_rates=44100:channel_layouts=stereo"

// audioClipStage renders one overlay clip: a start delay in milliseconds
// applied to both channels, then a volume scale.
func audioClipStage(g *graph.Graph, inputIndex int, clip job.AudioClip) (graph.Label, error) {
	delayMs := int(clip.StartTime * 1000)
	expr := fmt.Sprintf("adelay=%d|%d,volume=%s", delayMs, delayMs, ffNum(clip.Volume))

	in := g.Input(inputIndex, "a")
	out := g.Next("a")
	if err := g.AddStage([]graph.Label{in}, expr, []graph.Label{out}); err != nil {
		return "", err
	}
	return out, nil
}

// segmentAudioStage derives the single audio stream a video segment
// contributes, according to its audio-source policy.
//
// Muted keeps the segment's own audio at volume zero rather than
// substituting synthetic silence: the real stream carries the actual
// media duration, which keeps audio and video concatenation in sync.
func segmentAudioStage(g *graph.Graph, seg job.VideoSegment, videoInputIdx, voiceoverInputIdx int) (graph.Label, error) {
	var in graph.Label
	var ops []string

	switch seg.AudioSource {
	case job.AudioOriginal:
		in = g.Input(videoInputIdx, "a")
		ops = []string{"asetpts=PTS-STARTPTS", audioFormat}
		if seg.AudioVolume != 1.0 {
			ops = append(ops, "volume="+ffNum(seg.AudioVolume))
		}
	case job.AudioVoiceover:
		vo := seg.Voiceover
		in = g.Input(voiceoverInputIdx, "a")
		ops = []string{
			fmt.Sprintf("atrim=start=%s:end=%s", ffNum(vo.StartTime), ffNum(vo.StartTime+vo.Duration)),
			"asetpts=PTS-STARTPTS",
			audioFormat,
		}
		if seg.AudioVolume != 1.0 {
			ops = append(ops, "volume="+ffNum(seg.AudioVolume))
		}
	case job.AudioMuted:
		in = g.Input(videoInputIdx, "a")
		ops = []string{"asetpts=PTS-STARTPTS", audioFormat, "volume=0"}
	}

	out := g.Next("sa")
	if err := g.AddStage([]graph.Label{in}, strings.Join(ops, ","), []graph.Label{out}); err != nil {
		return "", err
	}
	return out, nil
}

// concatSegmentAudio joins per-segment audio streams, in segment order,
// into one source-audio stream. A single stream is used directly.
func concatSegmentAudio(g *graph.Graph, labels []graph.Label) (graph.Label, error) {
	if len(labels) == 1 {
		return labels[0], nil
	}
	out, err := g.Reserve("srcaudio")
	if err != nil {
		return "", err
	}
	expr := fmt.Sprintf("concat=n=%d:v=0:a=1", len(labels))
	if err := g.AddStage(labels, expr, []graph.Label{out}); err != nil {
		return "", err
	}
	return out, nil
}

// mixAudio combines the collected audio streams into the job's single
// audio output. Zero streams yield no audio output at all; one stream
// passes through untouched; two or more are mixed with the longest input
// deciding the duration and no automatic gain normalization (callers
// control loudness via per-clip volume).
func mixAudio(g *graph.Graph, streams []graph.Label) (graph.Label, error) {
	switch len(streams) {
	case 0:
		return "", nil
	case 1:
		return streams[0], nil
	}

	out, err := g.Reserve("outa")
	if err != nil {
		return "", err
	}
	expr := fmt.Sprintf("amix=inputs=%d:duration=longest:normalize=0", len(streams))
	if err := g.AddStage(streams, expr, []graph.Label{out}); err != nil {
		return "", err
	}
	return out, nil
}
