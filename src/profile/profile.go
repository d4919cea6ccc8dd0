// Package profile persists named capture setups (region, language, timing)
// as JSON documents.
package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"captiocr/src/ocr"
	"captiocr/src/screenshot"
)

const (
	DefaultName = "default"
	LastName    = "lastconfig"
	fileSuffix  = "_preferences.json"
	dateLayout  = "2006-01-02 15:04:05"

	MinIntervalFloor = 0.5
)

var (
	ErrInvalidProfile = errors.New("invalid profile")
	ErrNotFound       = errors.New("profile not found")
	ErrProtected      = errors.New("profile cannot be deleted")
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 _.-]{0,63}$`)

// Profile is a saved capture setup. Intervals are in seconds.
type Profile struct {
	Name        string            `json:"name"`
	Region      screenshot.Region `json:"region"`
	Language    string            `json:"language"`
	Debug       bool              `json:"debug"`
	CaptionMode bool              `json:"caption_mode"`
	MinInterval float64           `json:"min_interval"`
	MaxInterval float64           `json:"max_interval"`
	MaxSimilar  int               `json:"max_similar"`
	SavedDate   string            `json:"saved_date,omitempty"`
}

// document mirrors Profile with pointers so missing fields are detectable.
type document struct {
	Name        *string            `json:"name"`
	Region      *screenshot.Region `json:"region"`
	Language    string             `json:"language"`
	Debug       bool               `json:"debug"`
	CaptionMode *bool              `json:"caption_mode"`
	MinInterval float64            `json:"min_interval"`
	MaxInterval float64            `json:"max_interval"`
	MaxSimilar  *int               `json:"max_similar"`
	SavedDate   string             `json:"saved_date"`
}

// Parse decodes and validates a profile document. Optional fields get their
// defaults: language eng, caption mode on, intervals 3..6s, one similar tick.
func Parse(data []byte) (Profile, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Profile{}, fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}
	if doc.Name == nil || strings.TrimSpace(*doc.Name) == "" {
		return Profile{}, fmt.Errorf("%w: missing name", ErrInvalidProfile)
	}
	if doc.Region == nil {
		return Profile{}, fmt.Errorf("%w: missing region", ErrInvalidProfile)
	}

	p := Profile{
		Name:        strings.TrimSpace(*doc.Name),
		Region:      doc.Region.Normalized(),
		Language:    doc.Language,
		Debug:       doc.Debug,
		CaptionMode: true,
		MinInterval: doc.MinInterval,
		MaxInterval: doc.MaxInterval,
		MaxSimilar:  1,
		SavedDate:   doc.SavedDate,
	}
	if doc.CaptionMode != nil {
		p.CaptionMode = *doc.CaptionMode
	}
	if doc.MaxSimilar != nil {
		p.MaxSimilar = *doc.MaxSimilar
	}
	if p.Language == "" {
		p.Language = ocr.DefaultLanguage
	}
	if p.MinInterval == 0 {
		p.MinInterval = 3
	}
	if p.MaxInterval == 0 {
		p.MaxInterval = max(6, p.MinInterval)
	}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Validate checks every field.
func (p Profile) Validate() error {
	if !namePattern.MatchString(p.Name) {
		return fmt.Errorf("%w: bad name %q", ErrInvalidProfile, p.Name)
	}
	if err := p.Region.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidProfile, err)
	}
	if !ocr.ValidCode(p.Language) {
		return fmt.Errorf("%w: bad language code %q", ErrInvalidProfile, p.Language)
	}
	if p.MinInterval < MinIntervalFloor {
		return fmt.Errorf("%w: min interval %.1fs below %.1fs", ErrInvalidProfile, p.MinInterval, MinIntervalFloor)
	}
	if p.MaxInterval < p.MinInterval {
		return fmt.Errorf("%w: max interval %.1fs below min %.1fs", ErrInvalidProfile, p.MaxInterval, p.MinInterval)
	}
	if p.MaxSimilar < 0 {
		return fmt.Errorf("%w: negative max similar", ErrInvalidProfile)
	}
	return nil
}

// Intervals returns the interval bounds as durations.
func (p Profile) Intervals() (time.Duration, time.Duration) {
	return seconds(p.MinInterval), seconds(p.MaxInterval)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Store keeps profiles as <Dir>/<name>_preferences.json.
type Store struct {
	Dir string
	Now func() time.Time
}

func (s Store) path(name string) string {
	return filepath.Join(s.Dir, name+fileSuffix)
}

func (s Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Load reads the named profile.
func (s Store) Load(name string) (Profile, error) {
	if !namePattern.MatchString(name) {
		return Profile{}, fmt.Errorf("%w: bad name %q", ErrInvalidProfile, name)
	}
	data, err := os.ReadFile(s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return Profile{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return Profile{}, err
	}
	return Parse(data)
}

// Save validates p, stamps saved_date and writes it. The returned profile
// carries the stamp.
func (s Store) Save(p Profile) (Profile, error) {
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	p.SavedDate = s.now().Format(dateLayout)
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return Profile{}, err
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return Profile{}, err
	}

	tmp, err := os.CreateTemp(s.Dir, ".profile-*.tmp")
	if err != nil {
		return Profile{}, err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return Profile{}, err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return Profile{}, err
	}
	if err := os.Rename(tmpPath, s.path(p.Name)); err != nil {
		_ = os.Remove(tmpPath)
		return Profile{}, err
	}
	log.Printf("Profile: saved %q", p.Name)
	return p, nil
}

// List returns all readable profiles, newest first. Malformed files are
// logged and skipped.
func (s Store) List() ([]Profile, error) {
	matches, err := filepath.Glob(filepath.Join(s.Dir, "*"+fileSuffix))
	if err != nil {
		return nil, err
	}
	out := make([]Profile, 0, len(matches))
	for _, m := range matches {
		data, err := os.ReadFile(m)
		if err != nil {
			log.Printf("Profile: read %s: %v", m, err)
			continue
		}
		p, err := Parse(data)
		if err != nil {
			log.Printf("Profile: skipping %s: %v", m, err)
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SavedDate != out[j].SavedDate {
			// dateLayout sorts lexically
			return out[i].SavedDate > out[j].SavedDate
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// Delete removes the named profile. The default profile is protected.
func (s Store) Delete(name string) error {
	if name == DefaultName {
		return fmt.Errorf("%w: %s", ErrProtected, name)
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: bad name %q", ErrInvalidProfile, name)
	}
	err := os.Remove(s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err == nil {
		log.Printf("Profile: deleted %q", name)
	}
	return err
}

// LoadLast returns the last used setup, falling back to the default
// profile.
func (s Store) LoadLast() (Profile, error) {
	p, err := s.Load(LastName)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrNotFound) {
		log.Printf("Profile: %s unreadable, trying %s: %v", LastName, DefaultName, err)
	}
	return s.Load(DefaultName)
}

// SaveLast stores p as the last used setup.
func (s Store) SaveLast(p Profile) error {
	p.Name = LastName
	_, err := s.Save(p)
	return err
}
