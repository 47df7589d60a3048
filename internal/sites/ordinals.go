package sites

import (
	"regexp"
	"strconv"
)

var (
	episodeURLRe = regexp.MustCompile(`/staffel-(\d+)/episode-(\d+)`)
	filmURLRe    = regexp.MustCompile(`/filme/film-(\d+)`)
)

// Ordinals extracts season, episode and movie numbers from an episode
// page URL. Series episodes yield (season, episode, 0); film pages
// yield (0, 0, n). URLs with no recognizable ordinals are treated as a
// single-title page, movie 1.
func Ordinals(rawURL string) (season, episode, movie int) {
	if m := episodeURLRe.FindStringSubmatch(rawURL); m != nil {
		season, _ = strconv.Atoi(m[1])
		episode, _ = strconv.Atoi(m[2])
		return season, episode, 0
	}
	if m := filmURLRe.FindStringSubmatch(rawURL); m != nil {
		movie, _ = strconv.Atoi(m[1])
		return 0, 0, movie
	}
	return 0, 0, 1
}
