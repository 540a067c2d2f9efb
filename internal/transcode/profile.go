// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package transcode runs the ffmpeg process that turns a remote video into
// a browser-playable fragmented MP4 stream, and keeps finished outputs in
// an on-disk cache.
package transcode

import "fmt"

// Profile names one fixed output shape. The name is part of the output
// cache key, so changing the arguments of a profile requires a new name.
type Profile struct {
	Name      string
	MaxHeight int // 0 keeps the source height
}

// DefaultProfile is the only profile the gateway serves.
var DefaultProfile = Profile{Name: "web-h264-720", MaxHeight: 720}

// Args returns the ffmpeg argument list: source on stdin, fragmented MP4
// on stdout.
func (p Profile) Args() []string {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
	}
	if p.MaxHeight > 0 {
		args = append(args, "-vf", fmt.Sprintf("scale=-2:'min(%d,ih)'", p.MaxHeight))
	}
	return append(args,
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-crf", "28",
		"-maxrate", "2M",
		"-bufsize", "4M",
		"-c:a", "aac",
		"-b:a", "128k",
		"-ac", "2",
		"-movflags", "+faststart+frag_keyframe+empty_moov",
		"-f", "mp4",
		"-avoid_negative_ts", "make_zero",
		"pipe:1",
	)
}
