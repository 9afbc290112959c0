package model

type EmailSettings struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Email    string `json:"email" yaml:"email"`
	AuthCode string `json:"authCode,omitempty" yaml:"authCode"`
}

type TelegramSettings struct {
	BotToken string `json:"botToken,omitempty" yaml:"botToken"`
	ChatID   string `json:"chatId,omitempty" yaml:"chatId"`
}

func (s TelegramSettings) Enabled() bool {
	return s.BotToken != "" && s.ChatID != ""
}
