package registry

import (
	"fmt"
	"testing"
)

// BenchmarkNormaliseName benchmarks operation name normalisation
func BenchmarkNormaliseName(b *testing.B) {
	names := []string{
		"merge",
		"pdf-to-word",
		"PDF_TO_EXCEL",
		" jpgtopdf ",
	}

	b.ReportAllocs()
	for b.Loop() {
		for _, name := range names {
			_ = normaliseName(name)
		}
	}
}

// BenchmarkGet benchmarks operation lookup under the read lock
func BenchmarkGet(b *testing.B) {
	b.Setenv(DisabledOperationsEnv, "")
	r := New(nil, nil)
	for i := range 14 {
		r.Register(mockOperation{fmt.Sprintf("op%d", i)})
	}

	b.ReportAllocs()
	for b.Loop() {
		_, _ = r.Get("op7")
	}
}

// BenchmarkParseDisabledOperations benchmarks parsing of the disabled list
func BenchmarkParseDisabledOperations(b *testing.B) {
	b.Setenv(DisabledOperationsEnv, "merge,split,compress,pdftoword,wordtopdf,exceltopdf,jpgtopdf,pdftojpg")

	b.ReportAllocs()
	for b.Loop() {
		_ = New(nil, nil)
	}
}
