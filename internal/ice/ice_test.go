package ice

import (
	"fmt"
	"strings"
	"testing"

	"github.com/pkg/errors"
)

func raise() (err error) {
	defer Recover(&err)
	Panicf("variable %d already consumed", 7)
	return nil
}

func TestRecover(t *testing.T) {
	err := raise()
	if err == nil {
		t.Fatal("expected an error")
	}
	if !Is(err) {
		t.Errorf("Is(%v) = false, want true", err)
	}
	want := "internal compiler error: variable 7 already consumed"
	if err.Error() != want {
		t.Errorf("err = %q, want %q", err.Error(), want)
	}
	if !Is(errors.Wrap(err, "compile")) {
		t.Error("wrapped internal error not recognized")
	}
	if !strings.Contains(fmt.Sprintf("%+v", err), "raise") {
		t.Error("verbose output is missing the panic site")
	}
}

func TestRecoverPassesOtherPanics(t *testing.T) {
	defer func() {
		if r := recover(); r != "boom" {
			t.Errorf("recovered %v, want boom", r)
		}
	}()
	func() (err error) {
		defer Recover(&err)
		panic("boom")
	}()
}

func TestIsPlainError(t *testing.T) {
	if Is(errors.New("plain")) {
		t.Error("plain error reported as internal")
	}
}
