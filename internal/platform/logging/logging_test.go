package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNew_Level(t *testing.T) {
	l := New("debug", "development")
	if l.GetLevel() != logrus.DebugLevel {
		t.Errorf("level = %v, want debug", l.GetLevel())
	}
	if _, ok := l.Formatter.(*logrus.TextFormatter); !ok {
		t.Errorf("formatter = %T, want *logrus.TextFormatter", l.Formatter)
	}
}

func TestNew_ProductionUsesJSON(t *testing.T) {
	l := New("warn", "production")
	if _, ok := l.Formatter.(*logrus.JSONFormatter); !ok {
		t.Errorf("formatter = %T, want *logrus.JSONFormatter", l.Formatter)
	}
}

func TestNew_BadLevelFallsBackToInfo(t *testing.T) {
	l := New("loud", "")
	if l.GetLevel() != logrus.InfoLevel {
		t.Errorf("level = %v, want info", l.GetLevel())
	}
}

func TestDefault(t *testing.T) {
	given := Discard()
	if Default(given) != given {
		t.Error("Default should return the given logger")
	}
	if Default(nil) == nil {
		t.Error("Default(nil) should return a logger")
	}
}
