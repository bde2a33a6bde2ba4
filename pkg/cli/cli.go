package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/Warzone2100/warzone2100-sub038/pkg/config"
	"github.com/Warzone2100/warzone2100-sub038/pkg/logger"
	"github.com/Warzone2100/warzone2100-sub038/pkg/script"
)

// Config はコマンドライン引数から解析された設定を保持する
// ゼロ値の項目は設定ファイルの値を上書きしない
type Config struct {
	ScriptsPath string        // スクリプトリストのディレクトリ
	EntryFile   string        // 単一の.wzsファイル指定時のファイル名
	ConfigPath  string        // 設定ファイルのパス
	Timeout     time.Duration // タイムアウト時間（0は無制限）
	LogLevel    string        // ログレベル（debug, info, warn, error）
	LogFormat   string        // ログ形式（text, json）
	Encoding    string        // スクリプトのエンコーディング
	Budget      int           // 1ティックあたりの命令数
	TPS         int           // 1秒あたりのティック数
	MetricsAddr string        // Prometheusエンドポイントのアドレス
	Headless    bool          // ヘッドレスモード
	Disasm      bool          // 逆アセンブルして終了
	ShowHelp    bool          // ヘルプ表示フラグ
}

// ParseArgs コマンドライン引数を解析してConfigを返す
// フラグと位置引数の順序は自由（pflagが並べ替える）
func ParseArgs(args []string) (*Config, error) {
	fs := flag.NewFlagSet("wzscript", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	config := &Config{}

	var timeoutSec int
	fs.IntVarP(&timeoutSec, "timeout", "t", 0, "タイムアウト時間（秒）")
	fs.StringVarP(&config.LogLevel, "log-level", "l", "", "ログレベル（debug, info, warn, error）")
	fs.StringVar(&config.LogFormat, "log-format", "", "ログ形式（text, json）")
	fs.StringVarP(&config.ConfigPath, "config", "c", "", "設定ファイルのパス")
	fs.StringVarP(&config.Encoding, "encoding", "e", "", "スクリプトのエンコーディング")
	fs.IntVar(&config.Budget, "budget", 0, "1ティックあたりの命令数")
	fs.IntVar(&config.TPS, "tps", 0, "1秒あたりのティック数")
	fs.StringVar(&config.MetricsAddr, "metrics-addr", "", "Prometheusエンドポイントのアドレス")
	fs.BoolVar(&config.Headless, "headless", false, "ヘッドレスモード")
	fs.BoolVar(&config.Disasm, "disasm", false, "逆アセンブルして終了")
	fs.BoolVarP(&config.ShowHelp, "help", "h", false, "ヘルプを表示")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// 環境変数からの設定（コマンドラインフラグが優先）
	if !config.Headless {
		if headlessEnv := os.Getenv("HEADLESS"); headlessEnv != "" {
			config.Headless = headlessEnv == "1" || strings.ToLower(headlessEnv) == "true"
		}
	}

	// 環境変数からタイムアウトを取得（コマンドラインフラグが優先）
	if !fs.Changed("timeout") {
		if timeoutEnv := os.Getenv("TIMEOUT"); timeoutEnv != "" {
			if t, err := strconv.Atoi(timeoutEnv); err == nil && t > 0 {
				timeoutSec = t
			}
		}
	}

	// 環境変数からログレベルを取得（コマンドラインフラグが優先）
	if config.LogLevel == "" {
		config.LogLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	}

	// 環境変数から設定ファイルのパスを取得
	if config.ConfigPath == "" {
		config.ConfigPath = os.Getenv("WZSCRIPT_CONFIG")
	}

	// タイムアウトの検証
	if timeoutSec < 0 {
		return nil, fmt.Errorf("timeout must be non-negative, got %d", timeoutSec)
	}
	config.Timeout = time.Duration(timeoutSec) * time.Second

	// ログレベルの検証
	if config.LogLevel != "" {
		if _, err := logger.ParseLevel(config.LogLevel); err != nil {
			return nil, fmt.Errorf("%w (must be debug, info, warn, or error)", err)
		}
	}

	if config.Budget < 0 {
		return nil, fmt.Errorf("budget must be non-negative, got %d", config.Budget)
	}
	if config.TPS < 0 {
		return nil, fmt.Errorf("tps must be non-negative, got %d", config.TPS)
	}

	// 位置引数（スクリプトのパス）
	if fs.NArg() > 1 {
		return nil, fmt.Errorf("too many arguments: %v", fs.Args())
	}
	if fs.NArg() == 1 {
		path := fs.Arg(0)

		// .wzsファイルが指定された場合、ディレクトリとエントリーファイルに分離
		if strings.EqualFold(filepath.Ext(path), script.Ext) {
			config.ScriptsPath = filepath.Dir(path)
			config.EntryFile = filepath.Base(path)
		} else {
			config.ScriptsPath = path
		}
	}

	return config, nil
}

// Apply コマンドラインで指定された項目で設定ファイルの値を上書きする
func (c *Config) Apply(cfg *config.Config) error {
	if c.ScriptsPath != "" {
		cfg.Scripts.Dir = c.ScriptsPath
	}
	if c.Encoding != "" {
		cfg.Scripts.Encoding = c.Encoding
	}
	if c.LogLevel != "" {
		cfg.Log.Level = c.LogLevel
	}
	if c.LogFormat != "" {
		cfg.Log.Format = c.LogFormat
	}
	if c.Budget > 0 {
		cfg.Engine.Budget = c.Budget
	}
	if c.TPS > 0 {
		cfg.Engine.TPS = c.TPS
	}
	if c.MetricsAddr != "" {
		cfg.Metrics.Addr = c.MetricsAddr
	}
	if c.Timeout > 0 {
		cfg.Run.Timeout = c.Timeout
	}
	if c.Headless || c.Disasm {
		cfg.Run.Headless = true
	}
	return cfg.Validate()
}

// PrintHelp ヘルプメッセージを表示
func PrintHelp(w io.Writer) {
	fmt.Fprintf(w, `wzscript - script runtime

Usage:
  wzscript [options] [scripts-path]

Arguments:
  scripts-path  スクリプトリスト（.wzs）のディレクトリ、または単一の.wzsファイル（省略可）
                省略した場合は組み込みのサンプルを実行

Options:
  -c, --config <file>         設定ファイル（デフォルト: %s があれば使用）
  -t, --timeout <seconds>     指定秒数後にプログラムを終了（デフォルト: 無制限）
  -l, --log-level <level>     ログレベル: debug, info, warn, error（デフォルト: info）
  --log-format <format>       ログ形式: text, json（デフォルト: text）
  -e, --encoding <name>       スクリプトのエンコーディング（例: shift_jis）
  --budget <n>                1ティックあたりの命令数
  --tps <n>                   1秒あたりのティック数
  --metrics-addr <addr>       Prometheusメトリクスを公開（例: :9100）
  --headless                  ヘッドレスモード（GUIなし）
  --disasm                    スクリプトを逆アセンブルして表示し終了
  -h, --help                  このヘルプを表示

Environment Variables:
  HEADLESS=1                  ヘッドレスモードを有効化
  TIMEOUT=<seconds>           タイムアウト時間（秒）
  LOG_LEVEL=<level>           ログレベル
  WZSCRIPT_CONFIG=<file>      設定ファイル

Examples:
  wzscript ./scripts                  ディレクトリ内の全スクリプトを実行
  wzscript ./scripts/rules.wzs        単一のスクリプトを実行
  wzscript --disasm ./scripts         逆アセンブル結果を表示
  wzscript --headless --timeout 10    10秒後に自動終了
  HEADLESS=1 wzscript ./scripts       環境変数でヘッドレスモード
`, config.FileName)
}
