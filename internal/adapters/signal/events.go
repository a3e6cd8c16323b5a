package signal

import (
	"github.com/piljoong/moyim/internal/app/orch"
	"github.com/piljoong/moyim/internal/core"
	"github.com/piljoong/moyim/internal/domain"
)

// Outbound wire shapes. The envelope is {type, ...}; payload placement
// mirrors what the calendar UI already consumes.

type setUserIDEvent struct {
	Type string           `json:"type"`
	Data domain.Principal `json:"data"`
}

type membersEvent struct {
	Type string          `json:"type"`
	Data []domain.UserID `json:"data"`
}

type updateVotesEvent struct {
	Type string        `json:"type"`
	Data core.VotesDTO `json:"data"`
}

type newUserEvent struct {
	Type string         `json:"type"`
	Data core.MemberDTO `json:"data"`
}

type userLoggedOutEvent struct {
	Type string `json:"type"`
	Data struct {
		UserID     domain.UserID         `json:"userId"`
		Department domain.DepartmentName `json:"department"`
	} `json:"data"`
}

type signInSuccessEvent struct {
	Type       string                `json:"type"`
	Message    string                `json:"message"`
	Department domain.DepartmentName `json:"department"`
	Passkey    string                `json:"passkey,omitempty"`
}

type signInFailedEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type statisticEvent struct {
	Type string          `json:"type"`
	Data core.MonthStats `json:"data"`
}

type chatEvent struct {
	Type string           `json:"type"`
	Data orch.ChatMessage `json:"data"`
}

type pongEvent struct {
	Type string `json:"type"`
}

type errorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
