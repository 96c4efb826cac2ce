package domain

import (
	"errors"
	"path"
	"strings"
)

var ErrInvalidVolume = errors.New("volume must be between 0 and 1")

const DefaultVolume = 0.5

// Playlist est fixe : les pistes sont servies par le front.
var Playlist = []string{
	"/music/stranger-things-124008.mp3",
	"/music/jungle-ish-beat-for-video-games-314073.mp3",
	"/music/pixelate-pixelated-dreams-313358.mp3",
	"/music/on-the-road-to-the-eighties_30sec-177565.mp3",
	"/music/pixel-fight-8-bit-arcade-music-background-music-for-video-208775.mp3",
	"/music/funny-bgm-240795.mp3",
}

// TrackName : "/music/funny-bgm-240795.mp3" -> "funny-bgm-240795"
func TrackName(track string) string {
	return strings.TrimSuffix(path.Base(track), ".mp3")
}

type PlayerState struct {
	CurrentTrackIndex int     `json:"currentTrackIndex"`
	IsPlaying         bool    `json:"isPlaying"`
	Volume            float64 `json:"volume"`
	Track             string  `json:"track"`
	TrackName         string  `json:"trackName"`
}
