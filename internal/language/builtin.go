package language

import "path/filepath"

// Builtin returns the default language table.
//
// Interpreted: python, javascript, dart, ruby, php and go (via `go run`).
// Compiled: c, cpp, java and rust. Java expects a public class Main, which
// is why the staged source file is always named Main<ext>.
func Builtin() []Spec {
	return []Spec{
		{
			ID:        "python",
			Extension: ".py",
			Aliases:   []string{"py", "python3"},
			Toolchain: Interpreted{Command: []string{"python3"}},
		},
		{
			ID:        "javascript",
			Extension: ".js",
			Aliases:   []string{"js", "node"},
			Toolchain: Interpreted{Command: []string{"node"}},
		},
		{
			ID:        "dart",
			Extension: ".dart",
			Toolchain: Interpreted{Command: []string{"dart"}},
		},
		{
			ID:        "ruby",
			Extension: ".rb",
			Aliases:   []string{"rb"},
			Toolchain: Interpreted{Command: []string{"ruby"}},
		},
		{
			ID:        "php",
			Extension: ".php",
			Toolchain: Interpreted{Command: []string{"php"}},
		},
		{
			ID:        "go",
			Extension: ".go",
			Aliases:   []string{"golang"},
			Toolchain: Interpreted{Command: []string{"go", "run"}},
		},
		{
			ID:        "c",
			Extension: ".c",
			Toolchain: Compiled{
				Compile: func(src, out string) []string { return []string{"gcc", "-O2", "-o", out, src, "-lm"} },
				Run:     runArtifact,
			},
		},
		{
			ID:        "cpp",
			Extension: ".cpp",
			Aliases:   []string{"c++"},
			Toolchain: Compiled{
				Compile: func(src, out string) []string { return []string{"g++", "-O2", "-o", out, src} },
				Run:     runArtifact,
			},
		},
		{
			ID:        "java",
			Extension: ".java",
			Toolchain: Compiled{
				Compile: func(src, out string) []string { return []string{"javac", "-d", filepath.Dir(out), src} },
				Run:     func(out string) []string { return []string{"java", "-cp", filepath.Dir(out), "Main"} },
			},
		},
		{
			ID:        "rust",
			Extension: ".rs",
			Aliases:   []string{"rs"},
			Toolchain: Compiled{
				Compile: func(src, out string) []string { return []string{"rustc", "-O", "-o", out, src} },
				Run:     runArtifact,
			},
		},
	}
}

// Default returns a registry of the built-in languages.
func Default() *Registry {
	return MustRegistry(Builtin()...)
}

func runArtifact(out string) []string { return []string{out} }
