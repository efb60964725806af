package domain

import "fmt"

type Status string

const (
	Pending           Status = "Pending"
	FetchingNews      Status = "FetchingNews"
	GeneratingScript  Status = "GeneratingScript"
	GeneratingAudio   Status = "GeneratingAudio"
	GeneratingAvatars Status = "GeneratingAvatars"
	GeneratingBRoll   Status = "GeneratingBRoll"
	Composing         Status = "Composing"
	Completed         Status = "Completed"
	Failed            Status = "Failed"
)

// pipeline lists the non-failure states in the only order they may be entered.
var pipeline = []Status{
	Pending,
	FetchingNews,
	GeneratingScript,
	GeneratingAudio,
	GeneratingAvatars,
	GeneratingBRoll,
	Composing,
	Completed,
}

var checkpoints = map[Status]int{
	Pending:           0,
	FetchingNews:      10,
	GeneratingScript:  25,
	GeneratingAudio:   40,
	GeneratingAvatars: 55,
	GeneratingBRoll:   65,
	Composing:         85,
	Completed:         100,
}

var messages = map[Status]string{
	Pending:           "Sändning skapad",
	FetchingNews:      "Hämtar nyheter...",
	GeneratingScript:  "Skriver nyhetsmanus...",
	GeneratingAudio:   "Genererar tal...",
	GeneratingAvatars: "Genererar nyhetsankare...",
	GeneratingBRoll:   "Hämtar visuellt material...",
	Composing:         "Monterar slutlig video...",
	Completed:         "Sändning klar!",
	Failed:            "Sändning misslyckades",
}

// Progress returns the fixed progress checkpoint reported on entering s.
func Progress(s Status) int {
	return checkpoints[s]
}

// Message returns the user-facing status message for s.
func Message(s Status) string {
	return messages[s]
}

func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if s == Failed {
		return s, nil
	}
	if _, ok := checkpoints[s]; !ok {
		return "", fmt.Errorf("unknown status: %q", raw)
	}
	return s, nil
}

func (s Status) IsTerminal() bool {
	return s == Completed || s == Failed
}

func (s Status) String() string { return string(s) }

func CanTransition(from, to Status) bool {
	if from.IsTerminal() {
		return false
	}
	if to == Failed {
		_, known := checkpoints[from]
		return known
	}
	for i := 0; i < len(pipeline)-1; i++ {
		if pipeline[i] == from {
			return pipeline[i+1] == to
		}
	}
	return false
}

func ValidateTransition(from, to Status) error {
	if from == to && !from.IsTerminal() {
		return nil
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
