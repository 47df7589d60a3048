// Package library browses the download directory and cross-references
// site listings against files already on disk.
package library

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/hbollon/go-edlib"

	"github.com/fetcharr/fetcharr/internal/sites"
)

// ErrOutsideRoot is returned when a browse path escapes the library root.
var ErrOutsideRoot = errors.New("path outside library root")

// matchThreshold is the minimum name similarity for treating a library
// folder as the series a listing refers to.
const matchThreshold = 0.72

var videoExtensions = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".avi":  true,
	".webm": true,
	".m4v":  true,
}

var (
	episodeFileRe = regexp.MustCompile(`(?i)s(\d{1,3})e(\d{1,3})`)
	movieFileRe   = regexp.MustCompile(`(?i)movie\s*(\d{1,3})`)
)

// Entry is one row of a directory listing.
type Entry struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size,omitempty"`
}

// Library reads the download directory.
type Library struct {
	root string
}

// New creates a library over root.
func New(root string) *Library {
	return &Library{root: root}
}

// Root returns the library root directory.
func (l *Library) Root() string { return l.root }

// Browse lists one directory below the root. relPath "" or "." lists the
// root itself; escaping the root is rejected.
func (l *Library) Browse(relPath string) ([]Entry, error) {
	abs, err := l.resolve(relPath)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}

	out := make([]Entry, 0, len(entries))
	for _, de := range entries {
		if strings.HasPrefix(de.Name(), ".") {
			continue
		}
		rel := filepath.Join(relPath, de.Name())
		if de.IsDir() {
			out = append(out, Entry{Name: de.Name(), Path: rel, IsDir: true})
			continue
		}
		if !videoExtensions[strings.ToLower(filepath.Ext(de.Name()))] {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		out = append(out, Entry{Name: de.Name(), Path: rel, Size: info.Size()})
	}

	sort.Slice(out, func(i, k int) bool {
		if out[i].IsDir != out[k].IsDir {
			return out[i].IsDir
		}
		return out[i].Name < out[k].Name
	})
	return out, nil
}

// FilePath resolves relPath to an absolute path of an existing regular
// file under the root. Used for streaming and direct downloads.
func (l *Library) FilePath(relPath string) (string, error) {
	abs, err := l.resolve(relPath)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("stat: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s: is a directory", relPath)
	}
	return abs, nil
}

// Delete removes a file, or a directory and its contents, under the
// root. The root itself cannot be deleted.
func (l *Library) Delete(relPath string) error {
	abs, err := l.resolve(relPath)
	if err != nil {
		return err
	}
	if filepath.Clean(abs) == filepath.Clean(l.root) {
		return fmt.Errorf("%s: %w", relPath, ErrOutsideRoot)
	}
	if _, err := os.Stat(abs); err != nil {
		return fmt.Errorf("stat: %w", err)
	}
	return os.RemoveAll(abs)
}

// resolve joins relPath under the root and rejects traversal.
func (l *Library) resolve(relPath string) (string, error) {
	cleaned := filepath.Clean(relPath)
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("%s: %w", relPath, ErrOutsideRoot)
	}
	return filepath.Join(l.root, cleaned), nil
}

// localFiles maps episode and movie ordinals found under one series dir.
type localFiles struct {
	episodes map[[2]int]string
	movies   map[int]string
}

// Annotate marks the listing's episodes and movies that already exist on
// disk. The series folder is found by fuzzy name match, so "Attack on
// Titan" still matches "attack-on-titan".
func (l *Library) Annotate(listing *sites.Listing) {
	dir, ok := l.findSeriesDir(listing.Title, listing.Slug)
	if !ok {
		return
	}
	files := l.collect(dir)

	for season, refs := range listing.Episodes {
		for i := range refs {
			if path, ok := files.episodes[[2]int{season, refs[i].Episode}]; ok {
				refs[i].Local = true
				refs[i].LocalPath = path
			}
		}
		listing.Episodes[season] = refs
	}
	for i := range listing.Movies {
		if path, ok := files.movies[listing.Movies[i].Movie]; ok {
			listing.Movies[i].Local = true
			listing.Movies[i].LocalPath = path
		}
	}
}

// findSeriesDir picks the best-matching top-level folder for a series.
func (l *Library) findSeriesDir(title, slug string) (string, bool) {
	entries, err := os.ReadDir(l.root)
	if err != nil {
		return "", false
	}

	bestScore := float32(0)
	bestDir := ""
	for _, de := range entries {
		if !de.IsDir() {
			continue
		}
		score := nameSimilarity(de.Name(), title)
		if slugScore := nameSimilarity(de.Name(), slug); slugScore > score {
			score = slugScore
		}
		if score > bestScore {
			bestScore = score
			bestDir = de.Name()
		}
	}

	if bestScore < matchThreshold {
		return "", false
	}
	return filepath.Join(l.root, bestDir), true
}

// nameSimilarity compares normalized names with Jaro-Winkler, which
// weighs shared prefixes and copes with punctuation drift.
func nameSimilarity(a, b string) float32 {
	na, nb := normalizeName(a), normalizeName(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	score, err := edlib.StringsSimilarity(na, nb, edlib.JaroWinkler)
	if err != nil {
		return 0
	}
	return score
}

var nonAlnumRe = regexp.MustCompile(`[^a-z0-9]+`)

func normalizeName(s string) string {
	return strings.TrimSpace(nonAlnumRe.ReplaceAllString(strings.ToLower(s), " "))
}

// collect walks one series directory for video files and indexes them
// by parsed episode or movie number.
func (l *Library) collect(dir string) localFiles {
	files := localFiles{
		episodes: make(map[[2]int]string),
		movies:   make(map[int]string),
	}

	_ = filepath.WalkDir(dir, func(path string, de os.DirEntry, err error) error {
		if err != nil || de.IsDir() {
			return nil
		}
		if !videoExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		name := filepath.Base(path)
		if m := episodeFileRe.FindStringSubmatch(name); m != nil {
			season, _ := strconv.Atoi(m[1])
			episode, _ := strconv.Atoi(m[2])
			files.episodes[[2]int{season, episode}] = path
			return nil
		}
		if m := movieFileRe.FindStringSubmatch(name); m != nil {
			n, _ := strconv.Atoi(m[1])
			files.movies[n] = path
		}
		return nil
	})
	return files
}
