package handlers

import (
	"github.com/go-telegram/bot/models"
)

// Main menu button labels. The default handler routes on exact matches.
const (
	btnSetAd      = "📤 Set Advertisement"
	btnAddGroup   = "👥 Add Group"
	btnListGroups = "📋 List Groups"
	btnSchedule   = "⏱ Schedule Settings"
	btnStart      = "▶️ Start Broadcast"
	btnStop       = "⛔ Stop Broadcast"
	btnStatus     = "📊 Status"
	btnBack       = "🔙 Back"

	btnKindText     = "Text"
	btnKindPhoto    = "Photo"
	btnKindVideo    = "Video"
	btnKindDocument = "Document"

	btnSetInterval = "⏱ Set Interval"
	btnSetMaxSends = "🔢 Set Send Limit"
)

func mainKeyboard() *models.ReplyKeyboardMarkup {
	return &models.ReplyKeyboardMarkup{
		ResizeKeyboard: true,
		Keyboard: [][]models.KeyboardButton{
			{{Text: btnSetAd}, {Text: btnAddGroup}},
			{{Text: btnListGroups}, {Text: btnSchedule}},
			{{Text: btnStart}, {Text: btnStop}},
			{{Text: btnStatus}},
		},
	}
}

func adKindKeyboard() *models.ReplyKeyboardMarkup {
	return &models.ReplyKeyboardMarkup{
		ResizeKeyboard: true,
		Keyboard: [][]models.KeyboardButton{
			{{Text: btnKindText}, {Text: btnKindPhoto}},
			{{Text: btnKindVideo}, {Text: btnKindDocument}},
			{{Text: btnBack}},
		},
	}
}

func scheduleKeyboard() *models.ReplyKeyboardMarkup {
	return &models.ReplyKeyboardMarkup{
		ResizeKeyboard: true,
		Keyboard: [][]models.KeyboardButton{
			{{Text: btnSetInterval}, {Text: btnSetMaxSends}},
			{{Text: btnBack}},
		},
	}
}
