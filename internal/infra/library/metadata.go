package library

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dhowden/tag"
	goflac "github.com/go-flac/go-flac"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"

	"github.com/osa030/scenebox/internal/domain/track"
)

const (
	extMP3  = ".mp3"
	extFLAC = ".flac"
)

// ErrUnreadable marks files whose metadata could not be read.
var ErrUnreadable = errors.New("unreadable source")

// ReadTrack builds a catalog track from an audio file.
// Missing tags fall back to the file name; an unknown length stays 0.
func ReadTrack(path string) (track.Track, error) {
	f, err := os.Open(path)
	if err != nil {
		return track.Track{}, errors.Mark(errors.Wrap(err, "open"), ErrUnreadable)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return track.Track{}, errors.Mark(errors.Wrap(err, "stat"), ErrUnreadable)
	}

	t := track.Track{
		ID:        track.LocalID(path),
		Title:     track.TitleFromPath(path),
		SourceURI: path,
		AddedAt:   info.ModTime(),
	}

	m, err := tag.ReadFrom(f)
	switch {
	case errors.Is(err, tag.ErrNoTagsFound):
		// Untagged files are still playable
	case err != nil:
		return track.Track{}, errors.Mark(errors.Wrap(err, "read tags"), ErrUnreadable)
	default:
		if title := strings.TrimSpace(m.Title()); title != "" {
			t.Title = title
		}
		t.Artist = strings.TrimSpace(m.Artist())
		if t.Artist == "" {
			t.Artist = strings.TrimSpace(m.AlbumArtist())
		}
		t.Album = strings.TrimSpace(m.Album())
	}

	if d, err := readDuration(path); err == nil {
		t.Duration = d
	}
	return t, nil
}

// readDuration returns the stream length of MP3 and FLAC files.
func readDuration(path string) (time.Duration, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case extMP3:
		return readMP3Duration(path)
	case extFLAC:
		return readFLACDuration(path)
	default:
		return 0, errors.Newf("duration not supported: %s", filepath.Ext(path))
	}
}

func readMP3Duration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	streamer, format, err := mp3.Decode(f)
	if err != nil {
		return 0, err
	}
	defer streamer.Close()

	return streamLength(format, streamer), nil
}

// readFLACDuration reads the STREAMINFO block and falls back to decoding.
// Only metadata blocks are parsed, so header-only files are fine.
func readFLACDuration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	file, err := goflac.ParseMetadata(f)
	if err != nil {
		return readFLACWithBeep(path)
	}

	for _, meta := range file.Meta {
		if meta.Type != goflac.StreamInfo || len(meta.Data) < 18 {
			continue
		}
		data := meta.Data
		// Sample rate: 20 bits from byte 10. Total samples: 36 bits from byte 13.
		sampleRate := int64(data[10])<<12 | int64(data[11])<<4 | int64(data[12])>>4
		totalSamples := int64(data[13]&0x0F)<<32 | int64(data[14])<<24 | int64(data[15])<<16 | int64(data[16])<<8 | int64(data[17])
		if sampleRate == 0 {
			return 0, errors.New("flac: invalid sample rate")
		}
		return time.Duration(totalSamples) * time.Second / time.Duration(sampleRate), nil
	}

	return readFLACWithBeep(path)
}

func readFLACWithBeep(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if err := skipID3v2(f); err != nil {
		return 0, err
	}

	streamer, format, err := flac.Decode(f)
	if err != nil {
		return 0, err
	}
	defer streamer.Close()

	return streamLength(format, streamer), nil
}

func streamLength(format beep.Format, streamer beep.StreamSeekCloser) time.Duration {
	if format.SampleRate <= 0 {
		return 0
	}
	return format.SampleRate.D(streamer.Len())
}

// skipID3v2 skips an ID3v2 tag prepended to the stream.
func skipID3v2(r io.ReadSeeker) error {
	header := make([]byte, 10)
	n, err := io.ReadFull(r, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return err
	}
	if n < 10 || string(header[0:3]) != "ID3" {
		_, err = r.Seek(0, io.SeekStart)
		return err
	}

	// Tag size is a syncsafe integer in bytes 6-9
	size := int64(header[6])<<21 | int64(header[7])<<14 | int64(header[8])<<7 | int64(header[9])
	_, err = r.Seek(10+size, io.SeekStart)
	return err
}
