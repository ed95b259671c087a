package route

import (
	"path"
	"strings"
)

// excludedPrefixes はゲートを通さない静的アセットのプレフィックス。
var excludedPrefixes = []string{
	"/static/",
	"/_image",
	"/favicon.ico",
}

// excludedExtensions はゲートを通さない画像ファイルの拡張子。
var excludedExtensions = map[string]struct{}{
	".svg":  {},
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".gif":  {},
	".webp": {},
	".ico":  {},
}

// Excluded はパスがゲートの対象外（静的アセット・画像最適化・favicon・画像ファイル）
// かどうかを返す。
func Excluded(urlPath string) bool {
	for _, prefix := range excludedPrefixes {
		if strings.HasPrefix(urlPath, prefix) {
			return true
		}
	}
	_, ok := excludedExtensions[strings.ToLower(path.Ext(urlPath))]
	return ok
}
