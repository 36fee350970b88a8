// Package tagging reads metadata out of downloaded audio files. It never
// rewrites them: the reconciler only needs a display title, an author and a
// content type for the remote record, plus embedded artwork for the API.
package tagging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bogem/id3v2/v2"
	"github.com/dhowden/tag"
	"github.com/go-flac/flacvorbis"
	flac "github.com/go-flac/go-flac"

	"github.com/musicvault/musicvault/internal/constants"
)

// Probe is what a downloaded file reveals about itself.
type Probe struct {
	Title       string
	Artist      string
	ContentType string
}

// ProbeFile inspects the audio file at path. Missing tags are not an error;
// the zero fields just stay empty and the content type falls back to the
// extension, then to a generic binary type.
func ProbeFile(path string) (*Probe, error) {
	p := &Probe{ContentType: contentTypeForExt(filepath.Ext(path))}

	switch strings.ToLower(filepath.Ext(path)) {
	case constants.ExtFLAC:
		if err := probeFLAC(path, p); err != nil {
			return nil, err
		}
	case constants.ExtMP3:
		if err := probeMP3(path, p); err != nil {
			return nil, err
		}
	default:
		if err := probeGeneric(path, p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func probeFLAC(path string, p *Probe) error {
	f, err := flac.ParseFile(path)
	if err != nil {
		return fmt.Errorf("failed to parse FLAC file: %w", err)
	}

	for _, block := range f.Meta {
		if block.Type != flac.VorbisComment {
			continue
		}
		vc, err := flacvorbis.ParseFromMetaDataBlock(*block)
		if err != nil {
			continue
		}
		if titles, err := vc.Get(flacvorbis.FIELD_TITLE); err == nil && len(titles) > 0 {
			p.Title = titles[0]
		}
		if artists, err := vc.Get(flacvorbis.FIELD_ARTIST); err == nil && len(artists) > 0 {
			p.Artist = artists[0]
		}
	}
	return nil
}

func probeMP3(path string, p *Probe) error {
	t, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("failed to parse ID3 tags: %w", err)
	}
	defer t.Close()

	p.Title = t.Title()
	p.Artist = t.Artist()
	return nil
}

// probeGeneric handles every other container through dhowden/tag, which also
// identifies files whose extension lies about their content.
func probeGeneric(path string, p *Probe) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if m, err := tag.ReadFrom(f); err == nil {
		p.Title = m.Title()
		p.Artist = m.Artist()
	}

	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	if _, fileType, err := tag.Identify(f); err == nil {
		if ct := contentTypeForFileType(fileType); ct != "" {
			p.ContentType = ct
		}
	}
	return nil
}

func contentTypeForExt(ext string) string {
	switch strings.ToLower(ext) {
	case constants.ExtFLAC:
		return constants.MimeTypeFLAC
	case constants.ExtMP3:
		return constants.MimeTypeMP3
	case constants.ExtMP4, constants.ExtM4A, constants.ExtM4P:
		return constants.MimeTypeMP4
	default:
		return constants.MimeTypeBinary
	}
}

func contentTypeForFileType(ft tag.FileType) string {
	switch ft {
	case tag.FLAC:
		return constants.MimeTypeFLAC
	case tag.MP3:
		return constants.MimeTypeMP3
	case tag.M4A, tag.M4B, tag.M4P:
		return constants.MimeTypeMP4
	default:
		return ""
	}
}
