package cmd

import (
	"io"
	"os"
	"reflect"
	"strings"
	"testing"
)

func TestIsExitCommand(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{input: "exit", want: true},
		{input: " quit ", want: true},
		{input: ":q", want: true},
		{input: "EXIT", want: true},
		{input: "hello", want: false},
		{input: "quit now", want: false},
	}

	for _, tt := range tests {
		if got := isExitCommand(tt.input); got != tt.want {
			t.Fatalf("isExitCommand(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestAssistantLines(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantOut []string
	}{
		{name: "single line", input: "hello", wantOut: []string{"hello"}},
		{name: "multi line", input: "one\ntwo", wantOut: []string{"one", "two"}},
		{name: "trim outer whitespace", input: "  one\ntwo  ", wantOut: []string{"one", "two"}},
		{name: "empty input", input: "   ", wantOut: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := assistantLines(tt.input)
			if !reflect.DeepEqual(got, tt.wantOut) {
				t.Fatalf("assistantLines(%q) = %#v, want %#v", tt.input, got, tt.wantOut)
			}
		})
	}
}

func TestResolveMessage(t *testing.T) {
	original := messageText
	t.Cleanup(func() {
		messageText = original
	})

	messageText = " from-flag "
	if got := resolveMessage([]string{"from", "args"}); got != "from-flag" {
		t.Fatalf("resolveMessage with flag = %q, want %q", got, "from-flag")
	}

	messageText = ""
	if got := resolveMessage([]string{"hello", "world"}); got != "hello world" {
		t.Fatalf("resolveMessage with args = %q, want %q", got, "hello world")
	}

	if got := resolveMessage(nil); got != "" {
		t.Fatalf("resolveMessage without input = %q, want empty", got)
	}
}

func TestPrintAssistantMessage(t *testing.T) {
	output := captureStdout(t, func() {
		printAssistantMessage("first\nsecond")
	})

	if output != "🛍️ first\n🛍️ second\n\n" {
		t.Fatalf("printAssistantMessage output = %q", output)
	}

	emptyOutput := captureStdout(t, func() {
		printAssistantMessage("   ")
	})
	if emptyOutput != "" {
		t.Fatalf("expected no output for empty message, got %q", emptyOutput)
	}
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	original := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("create pipe: %v", err)
	}

	os.Stdout = w

	outCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		var builder strings.Builder
		_, copyErr := io.Copy(&builder, r)
		if copyErr != nil {
			errCh <- copyErr
			return
		}
		outCh <- builder.String()
	}()

	fn()

	if err := w.Close(); err != nil {
		os.Stdout = original
		t.Fatalf("close pipe writer: %v", err)
	}
	os.Stdout = original

	select {
	case output := <-outCh:
		return output
	case copyErr := <-errCh:
		t.Fatalf("read captured stdout: %v", copyErr)
		return ""
	}
}
