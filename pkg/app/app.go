package app

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Warzone2100/warzone2100-sub038/pkg/asm"
	"github.com/Warzone2100/warzone2100-sub038/pkg/cli"
	"github.com/Warzone2100/warzone2100-sub038/pkg/codec"
	"github.com/Warzone2100/warzone2100-sub038/pkg/config"
	"github.com/Warzone2100/warzone2100-sub038/pkg/disasm"
	"github.com/Warzone2100/warzone2100-sub038/pkg/engine"
	"github.com/Warzone2100/warzone2100-sub038/pkg/host"
	"github.com/Warzone2100/warzone2100-sub038/pkg/logger"
	"github.com/Warzone2100/warzone2100-sub038/pkg/script"
	"github.com/Warzone2100/warzone2100-sub038/pkg/vm"
	"github.com/Warzone2100/warzone2100-sub038/pkg/window"
)

// Application はアプリケーションのメインロジックを管理する
type Application struct {
	args     *cli.Config
	config   *config.Config
	log      *slog.Logger
	samples  fs.FS     // 組み込みのサンプルスクリプト
	out      io.Writer // ヘルプと逆アセンブル結果の出力先
	logOut   io.Writer // ログの出力先（nilは標準エラー出力）
	world    *host.World
	engine   *engine.Engine
	registry *prometheus.Registry
}

// Option はApplicationの設定オプション
type Option func(*Application)

// WithOutput ヘルプと逆アセンブル結果の出力先を設定する
func WithOutput(w io.Writer) Option {
	return func(app *Application) {
		app.out = w
	}
}

// WithLogOutput ログの出力先を設定する
func WithLogOutput(w io.Writer) Option {
	return func(app *Application) {
		app.logOut = w
	}
}

// New Applicationを作成
// samplesはスクリプトのパスが指定されなかった場合に使うファイルシステム
func New(samples fs.FS, opts ...Option) *Application {
	app := &Application{
		samples: samples,
		out:     os.Stdout,
	}
	for _, opt := range opts {
		opt(app)
	}
	return app
}

// Run アプリケーションを実行
func (app *Application) Run(args []string) error {
	// 1. コマンドライン引数の解析
	if err := app.parseArgs(args); err != nil {
		return fmt.Errorf("failed to parse args: %w", err)
	}

	if app.args.ShowHelp {
		cli.PrintHelp(app.out)
		return nil
	}

	// 2. 設定ファイルの読み込み
	if err := app.loadConfig(); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// 3. ロガーの初期化
	if err := app.initLogger(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	app.log.Info("Application started", "config", app.config.Path)

	// 4. スクリプトファイルの読み込み
	scripts, err := app.loadScripts()
	if err != nil {
		return fmt.Errorf("failed to load scripts: %w", err)
	}

	app.log.Info("Scripts loaded", "count", len(scripts))
	for _, s := range scripts {
		app.log.Debug("Script file", "name", s.Path, "size", s.Size, "encoding", s.Encoding)
	}

	// 5. ホストとエンジンの初期化
	if err := app.initEngine(); err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}

	// 6. スクリプトのアセンブル
	programs, err := app.assemble(scripts)
	if err != nil {
		return fmt.Errorf("failed to assemble scripts: %w", err)
	}

	if app.args.Disasm {
		return app.disassemble(programs)
	}

	for _, p := range programs {
		id, err := app.engine.Spawn(p)
		if err != nil {
			return fmt.Errorf("failed to spawn %s: %w", p.Name, err)
		}
		app.log.Info("Script spawned", "id", id, "program", p.Name, "words", p.Len())
	}

	// 7. 実行
	if err := app.run(); err != nil {
		return err
	}

	app.log.Info("Application terminated normally", "ticks", app.engine.Ticks(), "states", app.engine.Counts())
	return nil
}

// parseArgs コマンドライン引数を解析
func (app *Application) parseArgs(args []string) error {
	c, err := cli.ParseArgs(args)
	if err != nil {
		return err
	}
	app.args = c
	return nil
}

// loadConfig 設定ファイルを読み込み、コマンドライン引数で上書きする
// パスが指定されていない場合はカレントディレクトリのwzscript.tomlを探す
func (app *Application) loadConfig() error {
	var (
		c   *config.Config
		err error
	)
	if app.args.ConfigPath != "" {
		c, err = config.Load(app.args.ConfigPath)
	} else {
		c, err = config.LoadOptional(config.FileName)
	}
	if err != nil {
		return err
	}
	if err := app.args.Apply(c); err != nil {
		return err
	}
	app.config = c
	return nil
}

// initLogger ロガーを初期化
func (app *Application) initLogger() error {
	if err := logger.InitLogger(app.config.Log.Level, app.config.Log.Format, app.logOut); err != nil {
		return err
	}
	app.log = logger.GetLogger()
	return nil
}

// loadScripts スクリプトファイルを読み込む
// 単一ファイルが指定された場合はそのファイルのみ
func (app *Application) loadScripts() ([]script.Script, error) {
	fsys := app.samples
	if app.config.Scripts.Dir != "" {
		fsys = os.DirFS(app.config.Scripts.Dir)
	}
	if fsys == nil {
		return nil, fmt.Errorf("no scripts path given and no samples available")
	}

	loader := script.NewLoader(fsys,
		script.WithEncoding(app.config.Scripts.Encoding),
		script.WithLogger(app.log),
	)
	if app.args.EntryFile != "" {
		s, err := loader.LoadScript(app.args.EntryFile)
		if err != nil {
			return nil, err
		}
		return []script.Script{*s}, nil
	}
	return loader.LoadAllScripts()
}

// initEngine ホストの関数と変数を登録してエンジンを作成する
func (app *Application) initEngine() error {
	app.world = host.NewWorld(
		host.WithPlayers(app.config.World.Players),
		host.WithSeed(app.config.World.Seed),
		host.WithLogger(app.log),
	)
	funcs, vars, err := app.world.Tables()
	if err != nil {
		return err
	}

	app.registry = prometheus.NewRegistry()
	eng, err := engine.New(funcs, vars,
		engine.WithLogger(app.log),
		engine.WithBudget(app.config.Engine.Budget),
		engine.WithRegisterer(app.registry),
		engine.WithInstanceOptions(
			vm.WithMaxStack(app.config.Engine.MaxStack),
			vm.WithMaxDepth(app.config.Engine.MaxDepth),
		),
	)
	if err != nil {
		return err
	}
	app.engine = eng
	return nil
}

// assemble スクリプトをアセンブルする
// .nameがないスクリプトはファイル名をプログラム名にする
func (app *Application) assemble(scripts []script.Script) ([]*codec.Program, error) {
	names := app.engine.Names()
	programs := make([]*codec.Program, 0, len(scripts))
	for _, s := range scripts {
		p, err := asm.AssembleString(s.Content, names)
		if err != nil {
			app.log.Error("Assembly failed", "file", s.Path, "error", err)
			return nil, fmt.Errorf("%s: %w", s.Path, err)
		}
		if p.Name == "" {
			p.Name = strings.TrimSuffix(s.FileName, path.Ext(s.FileName))
		}
		programs = append(programs, p)
	}
	return programs, nil
}

// disassemble プログラムの一覧を出力する
func (app *Application) disassemble(programs []*codec.Program) error {
	for i, p := range programs {
		if i > 0 {
			fmt.Fprintln(app.out)
		}
		if err := disasm.Disassemble(app.out, p, app.engine.Names()); err != nil {
			return fmt.Errorf("failed to disassemble %s: %w", p.Name, err)
		}
	}
	return nil
}

// run ヘッドレスまたはGUIでエンジンを実行する
func (app *Application) run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if addr := app.config.Metrics.Addr; addr != "" {
		metricsCtx, cancel := context.WithCancel(ctx)
		done := runMetricsServer(metricsCtx, addr, app.registry, app.log)
		defer func() {
			cancel()
			<-done
		}()
	}

	// ヘッドレスモードの場合
	if app.config.Run.Headless {
		app.log.Info("Headless mode", "tps", app.config.Engine.TPS, "timeout", app.config.Run.Timeout)
		err := window.RunHeadless(ctx, app.engine, app.world, app.config.TickInterval(), app.config.Run.Timeout)
		if err != nil && ctx.Err() != nil {
			app.log.Info("Interrupted")
			return nil
		}
		return err
	}

	// GUIモードの場合はウィンドウを表示
	game := window.NewGame(app.engine, app.world, app.config.TickInterval(), app.config.Run.Timeout)
	return window.Run(game, app.config.Engine.TPS)
}
