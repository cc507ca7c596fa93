// Command missioncheck validates mission documents before they are copied
// to an engine's mission directory.
//
//	missioncheck [-dir missions] [file.xml ...]
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/AaronLay10/StrideQuest/internal/mission"
	"github.com/AaronLay10/StrideQuest/internal/orchestrator"
)

func main() {
	dir := flag.String("dir", "", "check every *.xml document in this directory")
	flag.Parse()

	paths := flag.Args()
	if *dir != "" {
		found, err := missionFiles(*dir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "missioncheck: %v\n", err)
			os.Exit(2)
		}
		paths = append(paths, found...)
	}
	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "usage: missioncheck [-dir DIR] [FILE ...]")
		os.Exit(2)
	}
	os.Exit(check(os.Stdout, paths))
}

func missionFiles(dir string) ([]string, error) {
	dirents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, de := range dirents {
		if !de.IsDir() && strings.EqualFold(filepath.Ext(de.Name()), ".xml") {
			out = append(out, filepath.Join(dir, de.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

// check reports on each document and returns the exit status: 0 when every
// document would load, 1 otherwise.
func check(w io.Writer, paths []string) int {
	status := 0
	for _, path := range paths {
		g, err := orchestrator.LoadMissionFile(path)
		if err != nil {
			fmt.Fprintf(w, "FAIL %s: %v\n", path, err)
			status = 1
			continue
		}
		if links := g.DanglingLinks(); len(links) > 0 {
			fmt.Fprintf(w, "FAIL %s: %v\n", path, &orchestrator.LinkError{Mission: g.Name, Links: links})
			status = 1
			continue
		}
		fmt.Fprintf(w, "ok   %s: %q start=%s moments=%d%s\n", path, g.Name, g.StartID, g.Len(), summary(g))
	}
	return status
}

func summary(g *mission.Graph) string {
	counts := make(map[mission.Kind]int)
	for _, id := range g.IDs() {
		counts[g.Moment(id).Kind]++
	}
	kinds := make([]string, 0, len(counts))
	for k, n := range counts {
		kinds = append(kinds, fmt.Sprintf("%s=%d", k, n))
	}
	sort.Strings(kinds)
	return " (" + strings.Join(kinds, " ") + ")"
}
