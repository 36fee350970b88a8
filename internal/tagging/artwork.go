package tagging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bogem/id3v2/v2"
	"github.com/dhowden/tag"
	"github.com/go-flac/flacpicture"
	flac "github.com/go-flac/go-flac"

	"github.com/musicvault/musicvault/internal/constants"
)

// ErrNoArtwork is returned when a file carries no embedded picture.
var ErrNoArtwork = errors.New("no embedded artwork")

// ExtractArtwork pulls the embedded cover picture out of an audio file and
// returns its bytes and MIME type.
func ExtractArtwork(path string) ([]byte, string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case constants.ExtFLAC:
		return artworkFLAC(path)
	case constants.ExtMP3:
		return artworkMP3(path)
	default:
		return artworkGeneric(path)
	}
}

func artworkFLAC(path string) ([]byte, string, error) {
	f, err := flac.ParseFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to parse FLAC file: %w", err)
	}

	for _, block := range f.Meta {
		if block.Type != flac.Picture {
			continue
		}
		pic, err := flacpicture.ParseFromMetaDataBlock(*block)
		if err != nil {
			continue
		}
		mime := pic.MIME
		if mime == "" {
			mime = constants.MimeTypeJPEG
		}
		return pic.ImageData, mime, nil
	}
	return nil, "", ErrNoArtwork
}

func artworkMP3(path string) ([]byte, string, error) {
	t, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return nil, "", fmt.Errorf("failed to parse ID3 tags: %w", err)
	}
	defer t.Close()

	frames := t.GetFrames(t.CommonID("Attached picture"))
	for _, frame := range frames {
		pic, ok := frame.(id3v2.PictureFrame)
		if !ok {
			continue
		}
		mime := pic.MimeType
		if mime == "" {
			mime = constants.MimeTypeJPEG
		}
		return pic.Picture, mime, nil
	}
	return nil, "", ErrNoArtwork
}

func artworkGeneric(path string) ([]byte, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil, "", ErrNoArtwork
	}
	pic := m.Picture()
	if pic == nil || len(pic.Data) == 0 {
		return nil, "", ErrNoArtwork
	}
	mime := pic.MIMEType
	if mime == "" {
		mime = constants.MimeTypeJPEG
	}
	return pic.Data, mime, nil
}
