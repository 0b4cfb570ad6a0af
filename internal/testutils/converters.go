package testutils

import "testing"

// FakeSoffice is a stand-in for soffice. It writes its own arguments into
// <outdir>/<input base>.<format>, as the real binary names its output.
const FakeSoffice = `args="$*"
fmt=""; out=""; in=""
while [ $# -gt 0 ]; do
  case "$1" in
    --convert-to) fmt="$2"; shift 2;;
    --outdir) out="$2"; shift 2;;
    *) in="$1"; shift;;
  esac
done
base=$(basename "$in")
base="${base%.*}"
printf '%s' "$args" > "$out/$base.$fmt"`

// FakePdftoppm is a stand-in for pdftoppm writing a marker into <prefix>.jpg, the prefix being the last argument
const FakePdftoppm = `for a in "$@"; do last="$a"; done
printf 'JPEG' > "$last.jpg"`

// FakeConverters writes both fakes into a fresh directory and returns the soffice path and the directory.
// The directory doubles as the poppler path.
func FakeConverters(t *testing.T) (soffice, popplerDir string) {
	t.Helper()
	popplerDir = t.TempDir()
	soffice = WriteScript(t, popplerDir, "soffice", FakeSoffice)
	WriteScript(t, popplerDir, "pdftoppm", FakePdftoppm)
	return soffice, popplerDir
}
