package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeMission(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCheck(t *testing.T) {
	dir := t.TempDir()
	good := writeMission(t, dir, "good.xml", `<mission name="Outrun the Swarm" start_id="a">
  <moment id="a" type="timer"><length_minutes>1</length_minutes><next_moment id="b"/></moment>
  <moment id="b" type="sfx"><uri>asset://sfx/door.ogg</uri></moment>
</mission>`)
	dangling := writeMission(t, dir, "dangling.xml", `<mission name="Lost" start_id="a">
  <moment id="a" type="timer"><length_minutes>1</length_minutes><next_moment id="gone"/></moment>
</mission>`)
	broken := writeMission(t, dir, "broken.xml", `<mission>`)

	var out bytes.Buffer
	if status := check(&out, []string{good}); status != 0 {
		t.Errorf("expected status 0, got %d: %s", status, out.String())
	}
	if !strings.Contains(out.String(), "sfx=1 timer=1") {
		t.Errorf("expected kind summary, got %s", out.String())
	}

	out.Reset()
	if status := check(&out, []string{good, dangling, broken}); status != 1 {
		t.Errorf("expected status 1, got %d", status)
	}
	report := out.String()
	if !strings.Contains(report, `a -> "gone"`) {
		t.Errorf("expected dangling link in report, got %s", report)
	}
	if strings.Count(report, "FAIL") != 2 {
		t.Errorf("expected two failures, got %s", report)
	}
}

func TestMissionFiles(t *testing.T) {
	dir := t.TempDir()
	writeMission(t, dir, "b.xml", "")
	writeMission(t, dir, "a.XML", "")
	writeMission(t, dir, "notes.txt", "")

	got, err := missionFiles(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || filepath.Base(got[0]) != "a.XML" {
		t.Errorf("unexpected files %v", got)
	}
}
