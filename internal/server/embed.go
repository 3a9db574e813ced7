package server

import (
	"embed"
	"log"
)

//go:embed all:dist
var embedFS embed.FS

// indexHTML は埋め込んだビューアのページを返す
func indexHTML() []byte {
	data, err := embedFS.ReadFile("dist/index.html")
	if err != nil {
		log.Fatalf("埋め込みindex.htmlの読み込みに失敗: %v", err)
	}
	return data
}
