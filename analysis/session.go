// Package analysis is the composition root tying the APK tamper-repair,
// method-graph adapter, and bytecode interpreter together into one
// per-file analysis pass. It stops short of rule matching, scoring, and
// reporting — those are a detection engine's job, built on top of the
// value-node expressions this package recovers.
package analysis

import (
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/rs/zerolog"

	"github.com/kurogo/apkforensics/apkinfo"
	"github.com/kurogo/apkforensics/apkpatch"
	"github.com/kurogo/apkforensics/interpreter"
	"github.com/kurogo/apkforensics/valuenode"
)

// Session holds one APK's patched image and the method/class-hierarchy
// facade over it. A Session is not safe for concurrent use; analyzing N
// APKs in parallel means constructing N independent Sessions, one per
// goroutine.
type Session struct {
	file    *os.File
	image   mmap.MMap
	backend apkinfo.Backend
	logger  zerolog.Logger
	patched bool
}

// Open memory-maps path read-write, runs apkpatch.Patch over the image in
// place, and wraps backend (already constructed over the same underlying
// bytes by the caller's disassembler) as the Session's method facade.
func Open(path string, backend apkinfo.Backend, logger zerolog.Logger) (*Session, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("analysis: open %s: %w", path, err)
	}

	image, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("analysis: mmap %s: %w", path, err)
	}

	patched := apkpatch.Patch(image, logger)

	return &Session{file: f, image: image, backend: backend, logger: logger, patched: patched}, nil
}

// Patched reports whether apkpatch.Patch modified the image during Open.
func (s *Session) Patched() bool { return s.patched }

// Close unmaps the session's image and closes the underlying file.
func (s *Session) Close() error {
	if err := s.image.Unmap(); err != nil {
		return err
	}
	return s.file.Close()
}

// EvaluateMethod runs one method's instruction stream through a fresh
// Interpreter, recovering from any instruction that fails the
// interpreter's error contract: a failure logs at warn level and returns
// the partially-filled Interpreter, matching "the detection pass logs and
// moves on" rather than aborting the whole session.
func (s *Session) EvaluateMethod(m apkinfo.Method) (it *interpreter.Interpreter, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn().Str("method", m.String()).Interface("panic", r).Msg("analysis: recovered while evaluating method")
			err = fmt.Errorf("analysis: panic evaluating %s: %v", m, r)
		}
	}()

	it = interpreter.New(registerCountHint, s.backend)

	for instr := range s.backend.MethodBytecode(m) {
		if evalErr := it.Eval(instr); evalErr != nil {
			s.logger.Warn().Str("method", m.String()).Strs("instruction", instr).Err(evalErr).Msg("analysis: instruction evaluation failed, method partially evaluated")
			return it, nil
		}
	}

	return it, nil
}

// registerCountHint sizes a fresh register table generously; interpreter
// handlers tolerate out-of-range writes, so an oversized table never
// drops a real register and an undersized one never panics.
const registerCountHint = 256

// EvaluateAll drives an evaluation of every custom (non-external) method
// in the backend, one at a time. A method whose evaluation panics is
// logged and skipped rather than aborting the remaining methods.
func (s *Session) EvaluateAll() map[apkinfo.Method]*interpreter.Interpreter {
	results := make(map[apkinfo.Method]*interpreter.Interpreter)

	for _, m := range s.backend.CustomMethods() {
		it, err := s.EvaluateMethod(m)
		if err != nil {
			s.logger.Warn().Str("method", m.String()).Err(err).Msg("analysis: skipping method")
			continue
		}
		results[m] = it
	}

	valuenode.ResetCache()
	return results
}
