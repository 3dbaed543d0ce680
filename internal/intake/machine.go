package intake

import (
	"fmt"
	"strings"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// Stage is a step of the intake conversation.
type Stage string

const (
	StageStart            Stage = "start"
	StageNeedComplaint    Stage = "needComplaint"
	StageConfirmComplaint Stage = "confirmComplaint"
	StageNeedDivision     Stage = "needDivision"
	StageNeedPhoto        Stage = "needPhoto"
	StageDone             Stage = "done"
)

// Speaker tags a transcript turn.
type Speaker string

const (
	SpeakerBot  Speaker = "bot"
	SpeakerUser Speaker = "user"
)

// Turn is one line of the conversation transcript.
type Turn struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}

// Photo is the draft photo kept with the conversation. Data is persisted
// apart from the session document.
type Photo struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        int    `json:"size"`
	Data        []byte `json:"-"`
}

// File converts the draft photo for submission.
func (p *Photo) File() *domain.File {
	if p == nil {
		return nil
	}
	return &domain.File{Name: p.Name, ContentType: p.ContentType, Data: p.Data}
}

// State is the full value of one conversation. It is replaced, never
// mutated, by Reduce.
type State struct {
	Stage        Stage  `json:"stage"`
	Complaint    string `json:"complaint,omitempty"`
	Division     string `json:"division,omitempty"`
	Photo        *Photo `json:"photo,omitempty"`
	Transcript   []Turn `json:"transcript"`
	LastError    string `json:"lastError,omitempty"`
	TicketNumber int64  `json:"ticketNumber,omitempty"`
}

// NewState returns a conversation at the initial stage.
func NewState() State {
	return State{Stage: StageStart, Transcript: []Turn{}}
}

// Event drives the conversation forward.
type Event interface {
	isEvent()
}

// Begin opens the conversation.
type Begin struct{}

// Text is a free-text user message.
type Text struct{ Value string }

// ChooseDivision picks a division from the selector.
type ChooseDivision struct{ Division string }

// AttachPhoto selects (or replaces) the incident photo.
type AttachPhoto struct{ File domain.File }

// Submitted records a successful store create.
type Submitted struct{ Number int64 }

// SubmitFailed records a failed store create.
type SubmitFailed struct{ Message string }

func (Begin) isEvent()          {}
func (Text) isEvent()           {}
func (ChooseDivision) isEvent() {}
func (AttachPhoto) isEvent()    {}
func (Submitted) isEvent()      {}
func (SubmitFailed) isEvent()   {}

// Bot copy.
const (
	promptComplaint = "Halo! Silakan ceritakan keluhan Anda."
	promptDivision  = "Silakan pilih divisi Anda."
	promptPhoto     = "Silakan unggah foto pendukung (gambar, maks. 5 MB)."
	promptSubmit    = "Foto diterima. Tekan kirim untuk membuat tiket."
	promptRetry     = "Baik, silakan tuliskan ulang keluhan Anda."
	userSubmit      = "Kirim tiket"
)

// Reduce returns the state that follows s on ev. A rejected event yields
// an error and s unchanged.
func Reduce(s State, ev Event, catalog Catalog) (State, error) {
	if s.Stage == StageDone {
		return s, invalidEvent(s.Stage, ev)
	}

	next := s.clone()
	switch e := ev.(type) {
	case Begin:
		if s.Stage != StageStart {
			return s, invalidEvent(s.Stage, ev)
		}
		next.Stage = StageNeedComplaint
		next.say(SpeakerBot, promptComplaint)

	case Text:
		value := strings.TrimSpace(e.Value)
		if value == "" {
			return s, apperrors.NewValidationError("pesan tidak boleh kosong", nil)
		}
		switch s.Stage {
		case StageNeedComplaint:
			next.Complaint = value
			next.Stage = StageConfirmComplaint
			next.exchange(value, fmt.Sprintf("Keluhan Anda: %q. Apakah sudah benar?", value))
		case StageConfirmComplaint:
			if catalog.IsAffirmative(value) {
				next.Stage = StageNeedDivision
				next.exchange(value, promptDivision)
			} else {
				next.Stage = StageNeedComplaint
				next.exchange(value, promptRetry)
			}
		default:
			return s, invalidEvent(s.Stage, ev)
		}

	case ChooseDivision:
		if s.Stage != StageNeedDivision {
			return s, invalidEvent(s.Stage, ev)
		}
		if !catalog.HasDivision(e.Division) {
			return s, apperrors.NewValidationError("divisi tidak dikenal", map[string]any{"division": e.Division})
		}
		next.Division = e.Division
		next.Stage = StageNeedPhoto
		next.exchange(e.Division, promptPhoto)

	case AttachPhoto:
		if s.Stage != StageNeedPhoto {
			return s, invalidEvent(s.Stage, ev)
		}
		if err := domain.ValidatePhoto(e.File); err != nil {
			return s, err
		}
		next.Photo = &Photo{Name: e.File.Name, ContentType: domain.PhotoContentType(e.File), Size: len(e.File.Data), Data: e.File.Data}
		next.LastError = ""
		next.exchange("[foto] "+e.File.Name, promptSubmit)

	case Submitted:
		if !CanSubmit(s) {
			return s, invalidEvent(s.Stage, ev)
		}
		next.Stage = StageDone
		next.TicketNumber = e.Number
		next.LastError = ""
		next.exchange(userSubmit, fmt.Sprintf("Tiket #%d berhasil dibuat. Terima kasih!", e.Number))

	case SubmitFailed:
		if !CanSubmit(s) {
			return s, invalidEvent(s.Stage, ev)
		}
		next.LastError = e.Message
		next.exchange(userSubmit, "Tiket gagal dikirim: "+e.Message)

	default:
		return s, invalidEvent(s.Stage, ev)
	}
	return next, nil
}

// CanSubmit reports whether a submit may be attempted from s.
func CanSubmit(s State) bool {
	return s.Stage == StageNeedPhoto && s.Photo != nil
}

// Recap is the summary card shown before submission.
type Recap struct {
	Complaint string                `json:"complaint"`
	Division  string                `json:"division"`
	Priority  domain.TicketPriority `json:"priority"`
}

// Recap returns the summary card once a division has been chosen.
func (s State) Recap() (Recap, bool) {
	if s.Division == "" {
		return Recap{}, false
	}
	return Recap{Complaint: s.Complaint, Division: s.Division, Priority: domain.DerivePriority(s.Division)}, true
}

func (s State) clone() State {
	next := s
	next.Transcript = append(make([]Turn, 0, len(s.Transcript)+2), s.Transcript...)
	return next
}

func (s *State) say(speaker Speaker, text string) {
	s.Transcript = append(s.Transcript, Turn{Speaker: speaker, Text: text})
}

func (s *State) exchange(user, bot string) {
	s.say(SpeakerUser, user)
	s.say(SpeakerBot, bot)
}

func invalidEvent(stage Stage, ev Event) error {
	return apperrors.NewValidationError(
		fmt.Sprintf("aksi tidak tersedia pada tahap %s", stage),
		map[string]any{"stage": string(stage), "event": fmt.Sprintf("%T", ev)},
	)
}
