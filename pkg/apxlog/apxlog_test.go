package apxlog

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"
)

func TestFilter(t *testing.T) {
	sink1 := new(bytes.Buffer)

	AddLogger("sink1Filter", sink1, DEBUG, false)
	defer DelLogger("sink1Filter")

	testString := "test 123"
	testString2 := "test 456"

	Debugln(testString)

	s1 := sink1.String()

	if !strings.Contains(s1, testString) {
		t.Fatal("sink1 got:", s1)
	}

	AddFilter("sink1Filter", "test 456")

	Debugln(testString2)

	s1 = sink1.String()

	if strings.Contains(s1, testString2) {
		t.Fatal("sink1 got:", s1)
	}

	DelFilter("sink1Filter", "test 456")

	Debugln(testString2)

	s1 = sink1.String()

	if !strings.Contains(s1, testString2) {
		t.Fatal("sink1 got:", s1)
	}
}

func TestCriticalBypassesFilters(t *testing.T) {
	sink := new(bytes.Buffer)

	AddLogger("sinkCritical", sink, DEBUG, false)
	defer DelLogger("sinkCritical")

	AddFilter("sinkCritical", "bus off")

	Warn("bus off (suppressed)")
	Critical("bus off (reported)")

	s := sink.String()
	if strings.Contains(s, "suppressed") {
		t.Fatal("sink got:", s)
	}
	if !strings.Contains(s, "reported") {
		t.Fatal("sink got:", s)
	}
}

func TestMultilog(t *testing.T) {
	sink1 := new(bytes.Buffer)
	sink2 := new(bytes.Buffer)

	AddLogger("sink1", sink1, DEBUG, false)
	AddLogger("sink2", sink2, DEBUG, false)
	defer DelLogger("sink1")
	defer DelLogger("sink2")

	testString := "test 123"

	Debugln(testString)

	s1 := sink1.String()
	s2 := sink2.String()

	if !strings.Contains(s1, testString) {
		t.Fatal("sink1 got:", s1)
	}

	if !strings.Contains(s2, testString) {
		t.Fatal("sink2 got:", s2)
	}
}

func TestLogLevels(t *testing.T) {
	sink1 := new(bytes.Buffer)
	sink2 := new(bytes.Buffer)

	AddLogger("sink1Level", sink1, DEBUG, false)
	AddLogger("sink2Level", sink2, INFO, false)
	defer DelLogger("sink1Level")
	defer DelLogger("sink2Level")

	testString := "test 123"

	Debugln(testString)

	s1 := sink1.String()
	s2 := sink2.String()

	if !strings.Contains(s1, testString) {
		t.Fatal("sink1 got:", s1)
	}

	if len(s2) != 0 {
		t.Fatal("sink2 got:", s2)
	}
}

func TestDelLogger(t *testing.T) {
	sink := new(bytes.Buffer)

	AddLogger("sinkDel", sink, DEBUG, false)

	testString := "test 123"
	testString2 := "test 456"

	Debug(testString)

	s, err := sink.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(s, testString) {
		t.Fatal("sink got:", s)
	}

	DelLogger("sinkDel")

	Debug(testString2)

	s, err = sink.ReadString('\n')
	if err != nil && err != io.EOF {
		t.Fatal(err)
	}

	if len(s) != 0 {
		t.Fatal("sink got:", s)
	}
}

func TestLogAll(t *testing.T) {
	sink := new(bytes.Buffer)
	source := bytes.NewBufferString("line_1\nline_2\nline_3")

	AddLogger("sinkAll", sink, DEBUG, false)
	defer DelLogger("sinkAll")

	LogAll(source, DEBUG, "test")
	time.Sleep(100 * time.Millisecond)

	l1, err := sink.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(l1, "line_1") {
		t.Fatal("sink got:", l1)
	}

	l2, err := sink.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(l2, "line_2") {
		t.Fatal("sink got:", l2)
	}

	l3, err := sink.ReadString('\n')
	if err != nil {
		t.Fatal(err, l3)
	}
	if !strings.Contains(l3, "line_3") {
		t.Fatal("sink got:", l3)
	}
}

func TestParseLevel(t *testing.T) {
	for level, name := range map[Level]string{
		DEBUG:    "debug",
		INFO:     "info",
		WARN:     "warn",
		ERROR:    "error",
		CRITICAL: "critical",
	} {
		got, err := ParseLevel(name)
		if err != nil {
			t.Fatal(err)
		}
		if got != level {
			t.Fatalf("ParseLevel(%q) = %v, want %v", name, got, level)
		}
		if level.String() != name {
			t.Fatalf("%v.String() = %q, want %q", level, level.String(), name)
		}
	}
	if _, err := ParseLevel("bogus"); err == nil {
		t.Fatal("expected error for bogus level")
	}
}

func TestRing(t *testing.T) {
	ring := AddRing("ringSink", 4, DEBUG)
	defer DelLogger("ringSink")

	for i := 0; i < 6; i++ {
		Debug("message %d", i)
	}

	dump := ring.Dump()
	if len(dump) != 4 {
		t.Fatal("ring got:", dump)
	}
	if !strings.Contains(dump[0], "message 2") {
		t.Fatal("ring got:", dump[0])
	}
	if !strings.Contains(dump[3], "message 5") {
		t.Fatal("ring got:", dump[3])
	}
}
