package runstore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testMeta(source, url string) FileMeta {
	return FileMeta{
		Source:     source,
		URL:        url,
		CapturedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Query:      "What is the capital of France?",
	}
}

func TestCreateRun_WritesFiles(t *testing.T) {
	store := &Store{Root: filepath.Join(t.TempDir(), "nested", "runs")}

	run, err := store.CreateRun("What is the capital of France?", time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("create run: %v", err)
	}

	if err := run.WriteQuery(testMeta("chorus", "")); err != nil {
		t.Fatalf("write query: %v", err)
	}
	if err := run.WriteAnswer("chatgpt", testMeta("ChatGPT", "https://chatgpt.com/c/1"), "Paris."); err != nil {
		t.Fatalf("write answer: %v", err)
	}
	if err := run.WriteSynthesis(testMeta("synthesis", ""), "All engines agree: Paris."); err != nil {
		t.Fatalf("write synthesis: %v", err)
	}

	data, err := os.ReadFile(run.Path("chatgpt.md"))
	if err != nil {
		t.Fatalf("read answer: %v", err)
	}
	text := string(data)

	for _, want := range []string{
		"source: ChatGPT\n",
		"url: https://chatgpt.com/c/1\n",
		"captured: 2026-03-01T10:00:00Z\n",
		"query: What is the capital of France?\n",
		"---\n\nParis.\n",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("answer file missing %q:\n%s", want, text)
		}
	}
}

func TestWriteAnswer_EmptyBodyPlaceholder(t *testing.T) {
	store := &Store{Root: t.TempDir()}
	run, err := store.CreateRun("q", time.Now())
	if err != nil {
		t.Fatal(err)
	}

	if err := run.WriteAnswer("gemini", testMeta("Gemini", ""), ""); err != nil {
		t.Fatalf("write empty answer: %v", err)
	}

	data, _ := os.ReadFile(run.Path("gemini.md"))
	if !strings.Contains(string(data), "(no response collected)") {
		t.Fatalf("placeholder missing:\n%s", data)
	}
}

func TestWrite_OncePerPath(t *testing.T) {
	store := &Store{Root: t.TempDir()}
	run, err := store.CreateRun("q", time.Now())
	if err != nil {
		t.Fatal(err)
	}

	if err := run.WriteAnswer("chatgpt", testMeta("ChatGPT", ""), "one"); err != nil {
		t.Fatal(err)
	}
	if err := run.WriteAnswer("chatgpt", testMeta("ChatGPT", ""), "two"); err == nil {
		t.Fatal("second write to same path must fail")
	}

	data, _ := os.ReadFile(run.Path("chatgpt.md"))
	if !strings.Contains(string(data), "one") {
		t.Fatal("first write clobbered")
	}
}

func TestCreateRun_IdempotentDirectory(t *testing.T) {
	store := &Store{Root: t.TempDir()}
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	a, err := store.CreateRun("same query", at)
	if err != nil {
		t.Fatal(err)
	}
	b, err := store.CreateRun("same query", at)
	if err != nil {
		t.Fatalf("second create must be idempotent: %v", err)
	}
	if a.Dir != b.Dir {
		t.Fatalf("same query+time must map to same dir: %q vs %q", a.Dir, b.Dir)
	}
}

func TestHeader_MultilineQuery(t *testing.T) {
	store := &Store{Root: t.TempDir()}
	run, err := store.CreateRun("line one\nline two", time.Now())
	if err != nil {
		t.Fatal(err)
	}

	meta := testMeta("chorus", "")
	meta.Query = "line one\nline two"
	if err := run.WriteQuery(meta); err != nil {
		t.Fatal(err)
	}

	data, _ := os.ReadFile(run.Path("prompt.md"))
	if !strings.Contains(string(data), "query: line one line two\n") {
		t.Fatalf("multiline query broke the header:\n%s", data)
	}
}
