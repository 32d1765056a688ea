package retrieval

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/papercomputeco/mnemo/pkg/memory"
)

const (
	// recentContextTurns is how many trailing messages augment a query.
	recentContextTurns = 3

	// recentExcerptRunes caps each augmenting excerpt.
	recentExcerptRunes = 100
)

// mediaCues gate attachment recall. A query mentioning none of them never
// scans attachment storage.
var mediaCues = []string{
	"图片", "照片", "截图", "图", "photo", "image", "picture", "screenshot",
	"视频", "video", "clip",
	"文件", "文档", "file", "document", "doc", "pdf",
	"音频", "语音", "audio", "voice",
	"发给你的", "给你的", "上次的", "那个", "那张", "那份",
}

var (
	windowsPathRe = regexp.MustCompile(`[A-Za-z]:[\\/][^\s"']+`)
	fileNameRe    = regexp.MustCompile(`[\w-]+\.(?:py|js|ts|go|md|json|yaml|yml|toml)\b`)
)

// EnhanceQuery prefixes query with excerpts of the last three recent
// messages, oldest first, each cut to 100 runes. With no recent messages the
// query is unchanged.
func EnhanceQuery(query string, recent []memory.Message) string {
	if len(recent) == 0 {
		return query
	}

	var parts []string
	for _, m := range recent[max(0, len(recent)-recentContextTurns):] {
		if m.Content == "" {
			continue
		}
		parts = append(parts, truncateRunes(m.Content, recentExcerptRunes))
	}
	return strings.Join(append(parts, query), " ")
}

// HasMediaCue reports whether query mentions an image, file, recording or
// similar media.
func HasMediaCue(query string) bool {
	q := strings.ToLower(query)
	for _, cue := range mediaCues {
		if strings.Contains(q, cue) {
			return true
		}
	}
	return false
}

// QueryEntities pulls candidate episode entities out of query: Windows
// paths, file names, then the first five words longer than two characters.
func QueryEntities(query string) []string {
	var entities []string
	entities = append(entities, windowsPathRe.FindAllString(query, -1)...)
	entities = append(entities, fileNameRe.FindAllString(query, -1)...)

	words := 0
	for _, w := range strings.Fields(query) {
		if utf8.RuneCountInString(w) <= 2 {
			continue
		}
		entities = append(entities, w)
		words++
		if words == 5 {
			break
		}
	}
	return entities
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
