package window

import (
	"context"
	"fmt"
	"image/color"
	"log/slog"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"golang.org/x/image/font/basicfont"

	"github.com/Warzone2100/warzone2100-sub038/pkg/engine"
	"github.com/Warzone2100/warzone2100-sub038/pkg/logger"
	"github.com/Warzone2100/warzone2100-sub038/pkg/vm"
)

const (
	screenWidth  = 1024
	screenHeight = 768
	lineHeight   = 16
	maxFaults    = 8
)

var (
	// 背景色 #0087C8
	backgroundColor = color.RGBA{0x00, 0x87, 0xC8, 0xFF}
	// テキスト色（白）
	textColor = color.White
	// 終了したインスタンス（灰色）
	doneTextColor = color.RGBA{0xC0, 0xC0, 0xC0, 0xFF}
	// フォールトしたインスタンス（黄色）
	faultTextColor = color.RGBA{0xFF, 0xFF, 0x00, 0xFF}
	// デフォルトフォント
	defaultFace = text.NewGoXFace(basicfont.Face7x13)
)

// World はティックごとに進めるホスト側の状態
type World interface {
	Advance(dt time.Duration)
	Messages() []string
}

// Line は画面に表示する1行
type Line struct {
	Text  string
	Color color.Color
}

// Game はEbitengineのゲームインターフェースを実装する
type Game struct {
	eng       *engine.Engine
	world     World
	interval  time.Duration // 1ティックのゲーム内時間
	timeout   time.Duration // タイムアウト時間
	startTime time.Time     // 開始時刻
	paused    bool

	last   engine.TickReport
	faults []engine.FaultReport // 直近のフォールト
	log    *slog.Logger
}

// NewGame Gameを作成
// intervalはEbitengineのTPSに合わせた1ティックあたりのゲーム内時間
func NewGame(eng *engine.Engine, world World, interval, timeout time.Duration) *Game {
	return &Game{
		eng:       eng,
		world:     world,
		interval:  interval,
		timeout:   timeout,
		startTime: time.Now(),
		log:       logger.GetLogger(),
	}
}

// Update ゲームロジックの更新（Ebitengineが毎フレーム呼び出す）
// 全インスタンスが終了してもウィンドウは閉じない。Escキーで終了する。
func (g *Game) Update() error {
	// タイムアウトチェック
	if g.timeout > 0 && time.Since(g.startTime) >= g.timeout {
		g.log.Info("Timeout reached, terminating")
		return ebiten.Termination
	}

	// Escキー（1回だけ反応）
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		return ebiten.Termination
	}

	// スペースキーで一時停止を切り替え
	if inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		g.paused = !g.paused
		g.log.Info("Pause toggled", "paused", g.paused)
	}

	// Rキーで終了・フォールトしたインスタンスを再起動
	if inpututil.IsKeyJustPressed(ebiten.KeyR) {
		g.restartAll()
	}

	if !g.paused {
		g.step()
	}
	return nil
}

// step エンジンを1ティック進める
func (g *Game) step() {
	g.last = g.eng.Tick()
	if g.world != nil {
		g.world.Advance(g.interval)
	}
	g.faults = append(g.faults, g.last.Faults...)
	if n := len(g.faults); n > maxFaults {
		g.faults = g.faults[n-maxFaults:]
	}
}

// restartAll 実行可能でないインスタンスをすべて再起動する
func (g *Game) restartAll() {
	for _, id := range g.eng.IDs() {
		in, ok := g.eng.Instance(id)
		if !ok || in.State().Runnable() {
			continue
		}
		if err := g.eng.Restart(id); err != nil {
			g.log.Error("Restart failed", "id", id, "error", err)
		}
	}
	g.faults = nil
}

// Lines 画面に表示する内容を返す
func (g *Game) Lines() []Line {
	var lines []Line
	status := fmt.Sprintf("tick %d  ran %d  steps %d", g.eng.Ticks(), g.last.Ran, g.last.Steps)
	if g.paused {
		status += "  [paused]"
	}
	lines = append(lines, Line{Text: status, Color: textColor}, Line{})

	for _, id := range g.eng.IDs() {
		in, ok := g.eng.Instance(id)
		if !ok {
			continue
		}
		c := color.Color(textColor)
		switch in.State() {
		case vm.Terminated:
			c = doneTextColor
		case vm.Faulted:
			c = faultTextColor
		}
		s := fmt.Sprintf("%-4s %-20s %-10s ip=%04d depth=%d steps=%d",
			id, in.Program().Name, in.State(), in.IP(), in.Depth(), in.Steps())
		lines = append(lines, Line{Text: s, Color: c})
	}

	if len(g.faults) > 0 {
		lines = append(lines, Line{}, Line{Text: "Faults:", Color: faultTextColor})
		for _, f := range g.faults {
			s := fmt.Sprintf("  %s %s: %v", f.ID, f.Program, f.Err)
			lines = append(lines, Line{Text: s, Color: faultTextColor})
		}
	}

	if g.world != nil {
		if msgs := g.world.Messages(); len(msgs) > 0 {
			lines = append(lines, Line{}, Line{Text: "Messages:", Color: textColor})
			for _, m := range msgs {
				lines = append(lines, Line{Text: "  " + m, Color: textColor})
			}
		}
	}
	return lines
}

// Draw 画面描画（Ebitengineが毎フレーム呼び出す）
func (g *Game) Draw(screen *ebiten.Image) {
	screen.Fill(backgroundColor)

	y := 30.0
	for _, l := range g.Lines() {
		if y > screenHeight-lineHeight {
			break
		}
		if l.Text != "" {
			op := &text.DrawOptions{}
			op.GeoM.Translate(30, y)
			op.ColorScale.ScaleWithColor(l.Color)
			text.Draw(screen, l.Text, defaultFace, op)
		}
		y += lineHeight
	}

	helpOp := &text.DrawOptions{}
	helpOp.GeoM.Translate(30, screenHeight-30)
	helpOp.ColorScale.ScaleWithColor(textColor)
	text.Draw(screen, "SPACE to pause, R to restart finished scripts, ESC to exit", defaultFace, helpOp)
}

// Layout 画面サイズを返す
func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return screenWidth, screenHeight
}

// RunHeadless ウィンドウなしでエンジンを実行する
// 全インスタンスが実行可能でなくなるか、タイムアウトで正常終了する。
// ctxがキャンセルされた場合はctx.Err()を返す。
func RunHeadless(ctx context.Context, eng *engine.Engine, world World, interval, timeout time.Duration) error {
	log := logger.GetLogger()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if eng.Idle() {
			log.Info("All scripts finished", "ticks", eng.Ticks())
			return nil
		}

		select {
		case <-ctx.Done():
			if timeout > 0 && ctx.Err() == context.DeadlineExceeded {
				log.Info("Timeout reached, terminating", "ticks", eng.Ticks())
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			eng.Tick()
			if world != nil {
				world.Advance(interval)
			}
		}
	}
}

// Run GUIモードでウィンドウを実行
func Run(game *Game, tps int) error {
	// ウィンドウ設定
	ebiten.SetWindowSize(screenWidth, screenHeight)
	ebiten.SetWindowTitle("wzscript")
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetTPS(tps)

	// ゲームを実行
	if err := ebiten.RunGame(game); err != nil {
		return fmt.Errorf("failed to run game: %w", err)
	}
	return nil
}
