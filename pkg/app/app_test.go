package app

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/Warzone2100/warzone2100-sub038/pkg/host"
	"github.com/Warzone2100/warzone2100-sub038/pkg/vm"
)

const helloListing = `
.name hello
  PUSH STRING "hello"
  CALL argc=1 debug
  POP
  RETURN
`

const countListing = `
; .nameなし
.locals 1
loop:
  LOADLOCAL 0
  PUSH INTEGER 3
  COMPARE GE
  JUMPTRUE done
  LOADLOCAL 0
  PUSH INTEGER 1
  ADD
  STORELOCAL 0
  YIELD
  JUMP loop
done:
  RETURN
`

func samples() fstest.MapFS {
	return fstest.MapFS{
		"hello.wzs": {Data: []byte(helloListing)},
		"Count.WZS": {Data: []byte(countListing)},
	}
}

// clearEnv テストに影響する環境変数を空にする
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"HEADLESS", "TIMEOUT", "LOG_LEVEL", "WZSCRIPT_CONFIG"} {
		t.Setenv(key, "")
	}
}

func newTestApp(fsys fstest.MapFS) (*Application, *bytes.Buffer, *bytes.Buffer) {
	var out, logs bytes.Buffer
	return New(fsys, WithOutput(&out), WithLogOutput(&logs)), &out, &logs
}

func TestRun_Help(t *testing.T) {
	clearEnv(t)
	app, out, _ := newTestApp(samples())
	if err := app.Run([]string{"--help"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "Usage:") {
		t.Errorf("expected usage text, got %q", out.String())
	}
}

func TestRun_HeadlessSamples(t *testing.T) {
	clearEnv(t)
	app, _, logs := newTestApp(samples())
	if err := app.Run([]string{"--headless", "--tps", "1000", "--timeout", "10"}); err != nil {
		t.Fatalf("unexpected error: %v\n%s", err, logs.String())
	}

	counts := app.engine.Counts()
	if counts[vm.Terminated] != 2 {
		t.Errorf("expected both scripts to terminate, got %v", counts)
	}
	if got := app.world.Messages(); len(got) != 1 || got[0] != "hello" {
		t.Errorf("unexpected messages %v", got)
	}
	if !strings.Contains(logs.String(), "All scripts finished") {
		t.Errorf("expected completion log, got:\n%s", logs.String())
	}

	// .nameがないスクリプトはファイル名を使う
	var names []string
	for _, id := range app.engine.IDs() {
		in, _ := app.engine.Instance(id)
		names = append(names, in.Program().Name)
	}
	if strings.Join(names, ",") != "Count,hello" {
		t.Errorf("unexpected program names %v", names)
	}
}

func TestRun_Disasm(t *testing.T) {
	clearEnv(t)
	app, out, _ := newTestApp(samples())
	if err := app.Run([]string{"--disasm"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	listing := out.String()
	for _, want := range []string{".name Count", ".name hello", `PUSH STRING "hello"`, "; debug"} {
		if !strings.Contains(listing, want) {
			t.Errorf("expected %q in listing:\n%s", want, listing)
		}
	}
	if app.engine.Len() != 0 {
		t.Error("disassembly should not spawn instances")
	}
}

func TestRun_EntryFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	for name, content := range map[string]string{"hello.wzs": helloListing, "count.wzs": countListing} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("failed to create test file: %v", err)
		}
	}

	app, _, logs := newTestApp(nil)
	if err := app.Run([]string{filepath.Join(dir, "HELLO.wzs"), "--headless", "--tps", "1000"}); err != nil {
		t.Fatalf("unexpected error: %v\n%s", err, logs.String())
	}
	if app.engine.Len() != 1 {
		t.Errorf("expected only the entry script, got %d instances", app.engine.Len())
	}
}

func TestRun_EntryFileName(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "count.wzs"), []byte(countListing), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	// 実際のファイル名がプログラム名になる
	app, out, logs := newTestApp(nil)
	if err := app.Run([]string{filepath.Join(dir, "COUNT.WZS"), "--disasm"}); err != nil {
		t.Fatalf("unexpected error: %v\n%s", err, logs.String())
	}
	if !strings.Contains(out.String(), ".name count") {
		t.Errorf("expected program named after count.wzs, got:\n%s", out.String())
	}
}

func TestRun_ConfigFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "game.toml")
	doc := "[world]\nplayers = 2\n\n[engine]\ntps = 1000\n\n[run]\nheadless = true\n"
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	app, _, logs := newTestApp(samples())
	if err := app.Run([]string{"-c", path}); err != nil {
		t.Fatalf("unexpected error: %v\n%s", err, logs.String())
	}
	if app.world.Players() != 2 {
		t.Errorf("expected 2 players, got %d", app.world.Players())
	}
	if app.world.Power(0) != host.DefaultPower {
		t.Errorf("unexpected power %d", app.world.Power(0))
	}
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name string
		fsys fstest.MapFS
		args []string
		want string
	}{
		{
			name: "無効な引数",
			fsys: samples(),
			args: []string{"--log-level", "loud"},
			want: "failed to parse args",
		},
		{
			name: "設定ファイルがない",
			fsys: samples(),
			args: []string{"-c", "/nonexistent/wzscript.toml"},
			want: "failed to load config",
		},
		{
			name: "スクリプトがない",
			fsys: fstest.MapFS{},
			args: []string{"--headless"},
			want: "failed to load scripts",
		},
		{
			name: "アセンブルエラー",
			fsys: fstest.MapFS{"bad.wzs": {Data: []byte("FROB")}},
			args: []string{"--headless"},
			want: "bad.wzs",
		},
		{
			name: "未知のホスト関数",
			fsys: fstest.MapFS{"bad.wzs": {Data: []byte("CALL argc=0 nothing")}},
			args: []string{"--headless"},
			want: "failed to assemble scripts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			app, _, _ := newTestApp(tt.fsys)
			err := app.Run(tt.args)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected %q in %v", tt.want, err)
			}
		})
	}
}
