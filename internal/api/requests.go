package api

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/example/multichannel/internal/messaging"
)

type CreateUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

func (m CreateUserRequest) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Name, validation.Required, validation.Length(1, 255)),
		validation.Field(&m.Email, is.EmailFormat),
		validation.Field(&m.Phone, is.Digit, validation.Length(6, 20)),
	)
}

type SendRequest struct {
	RecipientID string              `json:"recipient_id"`
	Channel     string              `json:"channel"`
	Type        messaging.MediaType `json:"type"`
	Content     string              `json:"content"`
}

func (m SendRequest) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.RecipientID, validation.Required),
		validation.Field(&m.Channel, validation.Required, validation.By(validVariant)),
		validation.Field(&m.Type, validation.Required),
	)
}

type BroadcastRequest struct {
	Type    messaging.MediaType `json:"type"`
	Content string              `json:"content"`
}

func (m BroadcastRequest) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Type, validation.Required),
	)
}

type AvailabilityRequest struct {
	Available *bool `json:"available"`
}

func (m AvailabilityRequest) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Available, validation.NotNil),
	)
}

func validVariant(value any) error {
	s, _ := value.(string)
	_, err := messaging.ParseVariant(s)
	return err
}

type UserResponse struct {
	ID            string              `json:"id"`
	Name          string              `json:"name"`
	Email         string              `json:"email,omitempty"`
	Phone         string              `json:"phone,omitempty"`
	Subscriptions []messaging.Variant `json:"subscriptions"`
}

func userResponse(u *messaging.User) UserResponse {
	return UserResponse{
		ID:            u.ID(),
		Name:          u.Name,
		Email:         u.Email,
		Phone:         u.Phone,
		Subscriptions: u.Subscriptions(),
	}
}

type MessageResponse struct {
	ID          string              `json:"id"`
	Type        messaging.MediaType `json:"type"`
	Content     string              `json:"content"`
	RecipientID string              `json:"recipient_id,omitempty"`
	Broadcast   bool                `json:"broadcast"`
	CreatedAt   time.Time           `json:"created_at"`
}

func messageResponses(msgs []messaging.Message) []MessageResponse {
	out := make([]MessageResponse, len(msgs))
	for i, m := range msgs {
		out[i] = MessageResponse{
			ID:          m.ID,
			Type:        m.Type,
			Content:     m.Content,
			RecipientID: m.RecipientID(),
			Broadcast:   m.IsBroadcast(),
			CreatedAt:   m.CreatedAt,
		}
	}
	return out
}
