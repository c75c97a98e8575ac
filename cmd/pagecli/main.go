// Command pagecli is a REPL for exercising a buffer pool directly: new,
// read, write, flush and delete pages by hand against a real on-disk
// database file. It exists to poke at the pool interactively, the same
// role the teacher's sqlclient REPL played for the query engine.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/tqhuy/pagestore/internal/buffer"
	"github.com/tqhuy/pagestore/internal/config"
	"github.com/tqhuy/pagestore/internal/logmgr"
	"github.com/tqhuy/pagestore/internal/storage"
)

func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".pagecli_history"
	}
	return filepath.Join(home, ".pagecli_history")
}

type History struct {
	path  string
	lines []string
}

func NewHistory(path string) *History { return &History{path: path} }

func (h *History) Load(max int) error {
	if h.path == "" {
		return nil
	}
	f, err := os.Open(h.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		s := strings.TrimSpace(sc.Text())
		if s == "" {
			continue
		}
		h.lines = append(h.lines, s)
		if max > 0 && len(h.lines) > max {
			h.lines = h.lines[len(h.lines)-max:]
		}
	}
	return sc.Err()
}

func (h *History) Append(cmd string) error {
	cmd = strings.TrimSpace(cmd)
	if cmd == "" || h.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(h.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(h.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	if _, err := fmt.Fprintln(f, cmd); err != nil {
		return err
	}
	h.lines = append(h.lines, cmd)
	return nil
}

func main() {
	var (
		dbPath   = flag.String("db", "", "path to the page store file (overrides config)")
		cfgPath  = flag.String("config", "", "path to a YAML config file")
		histPath = flag.String("history", defaultHistoryPath(), "history file path")
		histMax  = flag.Int("history-max", 2000, "max history lines loaded into memory")
		oneShot  = flag.String("c", "", "run a single command and exit")
	)
	flag.Parse()

	cfg := config.Default()
	if *cfgPath != "" {
		loaded, err := config.Load(*cfgPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *dbPath != "" {
		cfg.Storage.DiskPath = *dbPath
	}

	dm, err := storage.NewDiskManager(cfg.Storage.DiskPath, cfg.Storage.PageSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "disk manager: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = dm.Close() }()

	sched := storage.NewScheduler(dm)
	defer sched.Stop()

	var lm *logmgr.Manager
	if cfg.Log.Enabled {
		lm, err = logmgr.Open(cfg.Log.Dir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "log manager: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = lm.Close() }()
	}

	pool := buffer.New(cfg.Buffer.NumFrames, sched, cfg.Buffer.K, cfg.Storage.PageSize, lm)

	if strings.TrimSpace(*oneShot) != "" {
		runCommand(pool, *oneShot)
		return
	}

	h := NewHistory(*histPath)
	_ = h.Load(*histMax)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "pagestore> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "readline: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = rl.Close() }()

	for _, line := range h.lines {
		_ = rl.SaveHistory(line)
	}

	fmt.Printf("pagestore open at %s (%d frames, k=%d)\n", cfg.Storage.DiskPath, cfg.Buffer.NumFrames, cfg.Buffer.K)
	fmt.Println("type help for commands")

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			fmt.Println("^C")
			continue
		}
		if err != nil {
			fmt.Println()
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			return
		}
		_ = h.Append(line)
		_ = rl.SaveHistory(line)
		runCommand(pool, line)
	}
}

func runCommand(pool *buffer.Pool, line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "help":
		fmt.Println(`commands:
  new                      allocate a fresh page, prints its id
  read <pid>               fetch_read pid and print its bytes (trimmed)
  write <pid> <text>       fetch_write pid and overwrite its bytes with text
  flush <pid>              flush pid if dirty
  flushall                 flush every resident dirty page
  delete <pid>             delete pid
  pincount <pid>           print pid's current pin count
  size                     print the pool's frame capacity
  quit | exit              leave`)

	case "new":
		pid, err := pool.NewPage()
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		fmt.Printf("new page id=%d\n", pid)

	case "read":
		pid, err := parsePageID(args)
		if err != nil {
			fmt.Println(err)
			return
		}
		g, err := pool.FetchRead(pid, buffer.AccessLookup)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		fmt.Printf("page %d: %q\n", pid, trimNulls(g.Data()))
		g.Drop()

	case "write":
		if len(args) < 2 {
			fmt.Println("usage: write <pid> <text>")
			return
		}
		pid, err := parsePageID(args[:1])
		if err != nil {
			fmt.Println(err)
			return
		}
		text := strings.Join(args[1:], " ")
		g, err := pool.FetchWrite(pid, buffer.AccessLookup)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		data := g.DataMut()
		n := copy(data, text)
		for i := n; i < len(data); i++ {
			data[i] = 0
		}
		g.Drop()
		fmt.Printf("wrote %d bytes to page %d\n", n, pid)

	case "flush":
		pid, err := parsePageID(args)
		if err != nil {
			fmt.Println(err)
			return
		}
		ok, err := pool.FlushPage(pid)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		fmt.Printf("flush %d: %v\n", pid, ok)

	case "flushall":
		if err := pool.FlushAll(); err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		fmt.Println("ok")

	case "delete":
		pid, err := parsePageID(args)
		if err != nil {
			fmt.Println(err)
			return
		}
		ok, err := pool.DeletePage(pid)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		fmt.Printf("delete %d: %v\n", pid, ok)

	case "pincount":
		pid, err := parsePageID(args)
		if err != nil {
			fmt.Println(err)
			return
		}
		n, ok := pool.PinCount(pid)
		if !ok {
			fmt.Printf("page %d is not resident\n", pid)
			return
		}
		fmt.Printf("page %d pin count: %d\n", pid, n)

	case "size":
		fmt.Println(pool.Size())

	default:
		fmt.Printf("unknown command: %s (try help)\n", cmd)
	}
}

func parsePageID(args []string) (int32, error) {
	if len(args) < 1 {
		return 0, errors.New("usage: <cmd> <pid>")
	}
	n, err := strconv.ParseInt(args[0], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("bad page id %q: %w", args[0], err)
	}
	return int32(n), nil
}

func trimNulls(b []byte) string {
	i := 0
	for i < len(b) && b[i] != 0 {
		i++
	}
	return string(b[:i])
}
