package media

import (
	"errors"
	"fmt"
)

// Capture obtains a live stream from each ready source and combines the video
// track(s) of the video source with the audio track(s) of the audio source.
// Tracks left out of the combined stream are stopped.
func Capture(video, audio *MediaSource) (*Stream, error) {
	if video.Readiness() != Ready {
		return nil, newError(CodeLoad, "video source is not ready", video.Err())
	}
	if audio.Readiness() != Ready {
		return nil, newError(CodeLoad, "audio source is not ready", audio.Err())
	}

	videoStream, err := captureFrom(video)
	if err != nil {
		return nil, err
	}
	audioStream, err := captureFrom(audio)
	if err != nil {
		videoStream.Stop()
		return nil, err
	}

	videoTracks := videoStream.VideoTracks()
	audioTracks := audioStream.AudioTracks()

	if len(audioTracks) == 0 {
		videoStream.Stop()
		audioStream.Stop()
		return nil, newError(CodeEmptyTrack, "audio source yielded no audio tracks", nil)
	}
	if len(videoTracks) == 0 {
		videoStream.Stop()
		audioStream.Stop()
		return nil, newError(CodeEmptyTrack, "video source yielded no video tracks", nil)
	}

	stopExcept(videoStream, videoTracks)
	stopExcept(audioStream, audioTracks)

	tracks := make([]*Track, 0, len(videoTracks)+len(audioTracks))
	tracks = append(tracks, videoTracks...)
	tracks = append(tracks, audioTracks...)
	return NewStream(tracks...), nil
}

func captureFrom(src *MediaSource) (*Stream, error) {
	stream, err := src.Renderer().CaptureStream()
	if err != nil {
		if errors.Is(err, ErrCapability) {
			return nil, err
		}
		return nil, newError(CodeCapability, fmt.Sprintf("cannot capture %s renderer", src.Kind), err)
	}
	if stream == nil {
		return nil, newError(CodeCapability, fmt.Sprintf("%s renderer returned no stream", src.Kind), nil)
	}
	return stream, nil
}

func stopExcept(stream *Stream, keep []*Track) {
	kept := make(map[*Track]struct{}, len(keep))
	for _, t := range keep {
		kept[t] = struct{}{}
	}
	for _, t := range stream.Tracks() {
		if _, ok := kept[t]; !ok {
			t.Stop()
		}
	}
}
