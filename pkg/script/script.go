package script

import (
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/Warzone2100/warzone2100-sub038/pkg/fileutil"
	"github.com/Warzone2100/warzone2100-sub038/pkg/logger"
)

// Ext はスクリプトリストの拡張子
const Ext = ".wzs"

// Script はスクリプトリストファイルを表す
type Script struct {
	FileName string // ファイル名
	Path     string // ファイルシステム上のパス
	Content  string // UTF-8に変換された内容
	Size     int64  // ファイルサイズ
	Encoding string // 変換に使用したエンコーディング名
}

// Loader はスクリプトファイルの読み込みを行う
type Loader struct {
	fsys     fs.FS
	encoding string
	log      *slog.Logger
}

// Option はLoaderの設定オプション
type Option func(*Loader)

// WithEncoding 入力エンコーディングを指定する（"shift_jis"、"windows-1252"など）
// 空文字列の場合は自動判定
func WithEncoding(name string) Option {
	return func(l *Loader) {
		l.encoding = name
	}
}

// WithLogger ロガーを設定する
func WithLogger(log *slog.Logger) Option {
	return func(l *Loader) {
		l.log = log
	}
}

// NewLoader Loaderを作成
// fsysはos.DirFSでも埋め込みファイルシステムでもよい
func NewLoader(fsys fs.FS, opts ...Option) *Loader {
	l := &Loader{
		fsys: fsys,
		log:  logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadAllScripts すべての.wzsファイルを読み込む（ファイル名順）
func (l *Loader) LoadAllScripts() ([]Script, error) {
	scriptFiles, err := fileutil.FindByExt(l.fsys, ".", Ext)
	if err != nil {
		return nil, fmt.Errorf("failed to find script files: %w", err)
	}

	if len(scriptFiles) == 0 {
		return nil, fmt.Errorf("no %s files found", Ext)
	}

	scripts := make([]Script, 0, len(scriptFiles))
	for _, filePath := range scriptFiles {
		script, err := l.LoadScript(filePath)
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, *script)
	}

	return scripts, nil
}

// LoadScript 単一のスクリプトファイルを読み込む（大文字小文字を無視）
func (l *Loader) LoadScript(name string) (*Script, error) {
	data, actual, err := fileutil.ReadFile(l.fsys, name)
	if err != nil {
		return nil, fmt.Errorf("failed to load script %s: %w", name, err)
	}

	content, encName, err := Decode(data, l.encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load script %s: %w", name, err)
	}

	l.log.Debug("Script loaded", "file", actual, "bytes", len(data), "encoding", encName)

	return &Script{
		FileName: path.Base(actual),
		Path:     actual,
		Content:  content,
		Size:     int64(len(data)),
		Encoding: encName,
	}, nil
}

// Decode バイト列をUTF-8文字列に変換する
// encNameが指定された場合はそのエンコーディングで変換する。
// 未指定の場合、BOMがあればそれに従い、妥当なUTF-8ならUTF-8、
// それ以外はwindows-1252として扱う。
// 戻り値は変換後の文字列と使用したエンコーディング名。
func Decode(data []byte, encName string) (string, string, error) {
	var enc encoding.Encoding
	switch {
	case encName != "":
		e, err := htmlindex.Get(encName)
		if err != nil {
			return "", "", fmt.Errorf("unknown encoding %q: %w", encName, err)
		}
		enc = e
	case bomName(data) != "" || utf8.Valid(data):
		enc = unicode.UTF8
	default:
		enc = charmap.Windows1252
	}

	name, err := htmlindex.Name(enc)
	if err != nil {
		name = encName
	}
	if bom := bomName(data); bom != "" {
		name = bom
	}

	// BOMがある場合はBOMのエンコーディングを優先する
	decoder := unicode.BOMOverride(enc.NewDecoder())
	out, _, err := transform.Bytes(decoder, data)
	if err != nil {
		return "", "", fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return string(out), name, nil
}

// bomName BOMからエンコーディング名を判定する（BOMなしは空文字列）
func bomName(data []byte) string {
	switch {
	case len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF:
		return "utf-8"
	case len(data) >= 2 && data[0] == 0xFE && data[1] == 0xFF:
		return "utf-16be"
	case len(data) >= 2 && data[0] == 0xFF && data[1] == 0xFE:
		return "utf-16le"
	}
	return ""
}
