package imageurl

import (
	"regexp"
	"strings"
)

var (
	frontFace = regexp.MustCompile(`/(front|obv|obverse)\b`)
	backFace  = regexp.MustCompile(`/(back|rev|reverse)\b`)
)

type Face int

const (
	FaceUnknown Face = iota
	FaceFront
	FaceBack
)

func (f Face) String() string {
	switch f {
	case FaceFront:
		return "front"
	case FaceBack:
		return "back"
	}
	return "unknown"
}

func FaceOf(url string) Face {
	lower := strings.ToLower(url)
	switch {
	case frontFace.MatchString(lower):
		return FaceFront
	case backFace.MatchString(lower):
		return FaceBack
	}
	return FaceUnknown
}

// SelectFaces orders the front photograph first and the back second,
// followed by everything else in input order, and keeps at most max
// urls. max <= 0 keeps all of them.
func SelectFaces(urls []string, max int) []string {
	var front, back, rest []string
	for _, u := range urls {
		switch FaceOf(u) {
		case FaceFront:
			front = append(front, u)
		case FaceBack:
			back = append(back, u)
		default:
			rest = append(rest, u)
		}
	}

	out := []string{}
	if len(front) > 0 {
		out = append(out, front[0])
	}
	if len(back) > 0 {
		out = append(out, back[0])
	}
	if len(front) > 1 {
		out = append(out, front[1:]...)
	}
	if len(back) > 1 {
		out = append(out, back[1:]...)
	}
	out = append(out, rest...)

	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out
}
