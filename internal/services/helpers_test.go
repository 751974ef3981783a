package services

import (
	"github.com/saeid-a/FinCoachBack/internal/models"
	"github.com/saeid-a/FinCoachBack/internal/repository"
)

func createItem(itemType, title string, price int64) repository.CreateItemInput {
	return repository.CreateItemInput{ItemType: itemType, Title: title, Price: price, Currency: "INR"}
}

func createBooking(userID int64, item models.Item) repository.CreateBookingInput {
	return repository.CreateBookingInput{UserID: userID, ItemID: item.ID, ItemType: item.ItemType, Amount: item.Price}
}

func messageInput(conversationID int64, body string) repository.CreateMessageInput {
	return repository.CreateMessageInput{
		ConversationID: conversationID,
		SenderID:       10,
		SenderRole:     models.RoleClient,
		Body:           body,
		Kind:           models.MessageKindText,
	}
}
