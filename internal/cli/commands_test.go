// pattern: Imperative Shell
package cli

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func TestBuildApp_VersionCommand_PrintsVersion(t *testing.T) {
	app := BuildApp("1.2.3", "")

	versionCmd, ok := app.commands["version"]
	if !ok {
		t.Fatal("version command not registered")
	}

	oldStdout := os.Stdout
	defer func() { os.Stdout = oldStdout }()

	r, w, _ := os.Pipe()
	os.Stdout = w

	err := versionCmd.Run(nil)

	w.Close()
	buf := &bytes.Buffer{}
	buf.ReadFrom(r)
	os.Stdout = oldStdout

	if err != nil {
		t.Errorf("version command returned error: %v", err)
	}
	if got := buf.String(); got != "1.2.3\n" {
		t.Errorf("version command output = %q, want %q", got, "1.2.3\n")
	}
}

func TestBuildApp_NoArgs_ReturnsTrueForTUI(t *testing.T) {
	app := BuildApp("1.0.0", "")
	if !app.Execute(nil) {
		t.Errorf("Execute(nil) = false, want true")
	}
}

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(), "GIT_AUTHOR_NAME=wsx", "GIT_AUTHOR_EMAIL=wsx@example.com",
			"GIT_COMMITTER_NAME=wsx", "GIT_COMMITTER_EMAIL=wsx@example.com")
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	run("init", "-b", "main")
	run("config", "user.email", "wsx@example.com")
	run("config", "user.name", "wsx")
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("hi\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	run("add", "README.md")
	run("commit", "-m", "initial")
	return dir
}

func TestBuildApp_AddThenList_RoundTrips(t *testing.T) {
	repo := initRepo(t)
	dataDir := t.TempDir()
	app := BuildApp("1.0.0", dataDir)

	addCmd, ok := app.commands["add"]
	if !ok {
		t.Fatal("add command not registered")
	}
	if err := addCmd.Run([]string{repo, "--alias", "myproj"}); err != nil {
		t.Fatalf("add command returned error: %v", err)
	}

	listCmd, ok := app.commands["list"]
	if !ok {
		t.Fatal("list command not registered")
	}

	oldStdout := os.Stdout
	defer func() { os.Stdout = oldStdout }()
	r, w, _ := os.Pipe()
	os.Stdout = w

	err := listCmd.Run(nil)

	w.Close()
	buf := &bytes.Buffer{}
	buf.ReadFrom(r)
	os.Stdout = oldStdout

	if err != nil {
		t.Fatalf("list command returned error: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("myproj")) {
		t.Errorf("list output missing added project alias: %s", buf.String())
	}
}

func TestBuildApp_CleanCommand_ReportsNothingToClean(t *testing.T) {
	repo := initRepo(t)
	app := BuildApp("1.0.0", t.TempDir())

	cleanCmd, ok := app.commands["clean"]
	if !ok {
		t.Fatal("clean command not registered")
	}

	oldStdout := os.Stdout
	defer func() { os.Stdout = oldStdout }()
	r, w, _ := os.Pipe()
	os.Stdout = w

	err := cleanCmd.Run([]string{repo})

	w.Close()
	buf := &bytes.Buffer{}
	buf.ReadFrom(r)
	os.Stdout = oldStdout

	if err != nil {
		t.Errorf("clean command returned error: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("nothing to clean")) {
		t.Errorf("expected 'nothing to clean', got: %s", buf.String())
	}
}

func TestBuildApp_CleanupCommand_Registered(t *testing.T) {
	tmpDir := t.TempDir()
	app := BuildApp("1.0.0", tmpDir)

	cleanupCmd, ok := app.commands["cleanup"]
	if !ok {
		t.Fatal("cleanup command not registered")
	}
	if cleanupCmd.Summary == "" {
		t.Error("cleanup command should have a summary")
	}
	if cleanupCmd.Usage == "" {
		t.Error("cleanup command should have usage documentation")
	}

	oldStdout := os.Stdout
	defer func() { os.Stdout = oldStdout }()
	r, w, _ := os.Pipe()
	os.Stdout = w

	err := cleanupCmd.Run([]string{})

	w.Close()
	buf := &bytes.Buffer{}
	buf.ReadFrom(r)
	os.Stdout = oldStdout

	if err != nil {
		t.Errorf("cleanup command returned error: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("Cleaned up")) {
		t.Errorf("expected cleanup message in output, got: %s", buf.String())
	}
}
