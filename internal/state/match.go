package state

import "fmt"

// InningsPhase is the coarse match lifecycle reported by the upstream API.
type InningsPhase string

const (
	PhaseToBegin      InningsPhase = "ToBegin"
	PhaseInnings1     InningsPhase = "Innings1"
	PhaseInningsBreak InningsPhase = "InningsBreak"
	PhaseInnings2     InningsPhase = "Innings2"
	PhaseEnded        InningsPhase = "Ended"
)

// ParsePhase maps the upstream innings strings onto the phase enum.
// Unknown values map to ToBegin so a misbehaving upstream never wedges
// announcements permanently.
func ParsePhase(s string) InningsPhase {
	switch s {
	case "To Begin", "ToBegin":
		return PhaseToBegin
	case "Innings 1", "Innings1":
		return PhaseInnings1
	case "Innings Break", "InningsBreak":
		return PhaseInningsBreak
	case "Innings 2", "Innings2":
		return PhaseInnings2
	case "End Innings", "Ended":
		return PhaseEnded
	default:
		return PhaseToBegin
	}
}

// MatchState tracks the current match: teams, innings phase, and the
// one-shot announcement flags. In-memory only; it is rebuilt from the
// upstream API after a restart and reset whenever the match id changes.
type MatchState struct {
	MatchID     string
	TeamOneName string
	TeamTwoName string
	TeamOneID   int
	TeamTwoID   int
	WinnerID    int
	Phase       InningsPhase

	welcomed       bool
	breakAnnounced bool
	endedAnnounced bool
}

// NewMatchState returns an empty state with placeholder team names.
func NewMatchState() *MatchState {
	return &MatchState{
		TeamOneName: "Team 1",
		TeamTwoName: "Team 2",
		Phase:       PhaseToBegin,
	}
}

// MatchInfo is the current-match payload from the upstream API.
type MatchInfo struct {
	MatchID     string `json:"match_id"`
	TeamOneName string `json:"teamOneName"`
	TeamTwoName string `json:"teamTwoName"`
	TeamOneID   int    `json:"teamOneId"`
	TeamTwoID   int    `json:"teamTwoId"`
	WinnerID    int    `json:"winnerId"`
	Innings     string `json:"innings"`
}

// Update applies a current-match payload. Returns true when the match id
// changed, which resets the announcement flags.
func (m *MatchState) Update(info *MatchInfo) bool {
	isNew := info.MatchID != "" && info.MatchID != m.MatchID
	if isNew {
		m.Reset()
		m.MatchID = info.MatchID
	}

	if info.TeamOneName != "" {
		m.TeamOneName = info.TeamOneName
	}
	if info.TeamTwoName != "" {
		m.TeamTwoName = info.TeamTwoName
	}
	m.TeamOneID = info.TeamOneID
	m.TeamTwoID = info.TeamTwoID
	m.WinnerID = info.WinnerID
	if info.Innings != "" {
		m.Phase = ParsePhase(info.Innings)
	}
	return isNew
}

// Reset clears announcement flags and team data for a new match.
func (m *MatchState) Reset() {
	*m = *NewMatchState()
}

// ShouldAnnounceWelcome reports whether the welcome announcement is due.
func (m *MatchState) ShouldAnnounceWelcome() bool {
	return m.Phase == PhaseToBegin && !m.welcomed
}

// ShouldAnnounceBreak reports whether the innings-break announcement is due.
func (m *MatchState) ShouldAnnounceBreak() bool {
	return m.Phase == PhaseInningsBreak && !m.breakAnnounced
}

// ShouldAnnounceEnd reports whether the match-end announcement is due.
func (m *MatchState) ShouldAnnounceEnd() bool {
	return m.Phase == PhaseEnded && !m.endedAnnounced
}

// MarkWelcomed latches the welcome flag.
func (m *MatchState) MarkWelcomed() { m.welcomed = true }

// MarkBreakAnnounced latches the innings-break flag.
func (m *MatchState) MarkBreakAnnounced() { m.breakAnnounced = true }

// MarkEndAnnounced latches the match-end flag.
func (m *MatchState) MarkEndAnnounced() { m.endedAnnounced = true }

// WinnerName resolves the winner id against the team ids, "Draw" when
// there is no winner.
func (m *MatchState) WinnerName() string {
	switch {
	case m.WinnerID == 0:
		return "Draw"
	case m.WinnerID == m.TeamOneID:
		return m.TeamOneName
	case m.WinnerID == m.TeamTwoID:
		return m.TeamTwoName
	default:
		return "Draw"
	}
}

// The three lifecycle announcements are canonical template strings filled
// with team names; they are the sole exception to "no text generation"
// and go through the same TTS and mixer path as inbound events.

// WelcomeText returns the match welcome announcement and its excitement.
func (m *MatchState) WelcomeText() (string, int) {
	text := fmt.Sprintf(
		"Ladies and gentlemen, welcome to this exciting indoor cricket match between %s and %s! Here we go!",
		m.TeamOneName, m.TeamTwoName,
	)
	return text, 9
}

// BreakText returns the innings-break announcement and its excitement.
func (m *MatchState) BreakText() (string, int) {
	return "That's the end of the first innings! Time for a short break.", 4
}

// EndText returns the match-end announcement and its excitement.
func (m *MatchState) EndText() (string, int) {
	winner := m.WinnerName()
	if winner == "Draw" {
		return "And that's the game! It's a thrilling draw! What a contest!", 10
	}
	return fmt.Sprintf("And that's the game! %s wins this thrilling contest! What a match!", winner), 10
}
