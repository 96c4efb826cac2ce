package domain

import "errors"

var (
	ErrAppURLMissing             = errors.New("APP_URL is not set")
	ErrAccountAssociationMissing = errors.New("farcaster account association environment variables are not set")
)

const (
	FrameName             = "Ember Island"
	SplashBackgroundColor = "#27213C"
)

type AccountAssociation struct {
	Header    string `json:"header"`
	Payload   string `json:"payload"`
	Signature string `json:"signature"`
}

type FrameMetadata struct {
	Version               string `json:"version"`
	Name                  string `json:"name"`
	IconURL               string `json:"iconUrl"`
	HomeURL               string `json:"homeUrl"`
	ImageURL              string `json:"imageUrl"`
	ButtonTitle           string `json:"buttonTitle"`
	SplashImageURL        string `json:"splashImageUrl"`
	SplashBackgroundColor string `json:"splashBackgroundColor"`
	WebhookURL            string `json:"webhookUrl"`
}

// Manifest est servi sur /.well-known/farcaster.json
type Manifest struct {
	AccountAssociation AccountAssociation `json:"accountAssociation"`
	Frame              FrameMetadata      `json:"frame"`
}

// BuildManifest échoue si la moindre variable requise manque : jamais de
// manifest partiel.
func BuildManifest(appURL string, assoc AccountAssociation) (*Manifest, error) {
	if appURL == "" {
		return nil, ErrAppURLMissing
	}
	if assoc.Header == "" || assoc.Payload == "" || assoc.Signature == "" {
		return nil, ErrAccountAssociationMissing
	}

	return &Manifest{
		AccountAssociation: assoc,
		Frame: FrameMetadata{
			Version:               "1",
			Name:                  FrameName,
			IconURL:               appURL + "/images/icon.png",
			HomeURL:               appURL,
			ImageURL:              appURL + "/images/frame-image.png",
			ButtonTitle:           "Play",
			SplashImageURL:        appURL + "/images/icon.png",
			SplashBackgroundColor: SplashBackgroundColor,
			WebhookURL:            appURL + "/api/webhook",
		},
	}, nil
}

// --- EMBED (meta fc:frame) ---

type FrameAction struct {
	Type                  string `json:"type"`
	Name                  string `json:"name"`
	URL                   string `json:"url"`
	SplashImageURL        string `json:"splashImageUrl"`
	SplashBackgroundColor string `json:"splashBackgroundColor"`
}

type FrameButton struct {
	Title  string      `json:"title"`
	Action FrameAction `json:"action"`
}

type FrameEmbed struct {
	Version  string      `json:"version"`
	ImageURL string      `json:"imageUrl"`
	Button   FrameButton `json:"button"`
}

func BuildFrameEmbed(appURL string) (*FrameEmbed, error) {
	if appURL == "" {
		return nil, ErrAppURLMissing
	}
	return &FrameEmbed{
		Version:  "next",
		ImageURL: appURL + "/images/frame-image.png",
		Button: FrameButton{
			Title: FrameName,
			Action: FrameAction{
				Type:                  "launch_frame",
				Name:                  "Dance with Fire",
				URL:                   appURL,
				SplashImageURL:        appURL + "/images/frame-image.png",
				SplashBackgroundColor: SplashBackgroundColor,
			},
		},
	}, nil
}
