package entity

// ProviderProfile - проверенный профиль, полученный от внешнего провайдера после рукопожатия
type ProviderProfile struct {
	Provider      string
	SubjectID     string
	Email         string
	EmailVerified bool
	FirstName     string
	LastName      string
	DisplayName   string
}
