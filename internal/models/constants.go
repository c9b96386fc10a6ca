package models

const (
	// DefaultSlotStepMinutes шаг сетки времени начала для скоростных лодок
	DefaultSlotStepMinutes = 30

	// DurationStepMinutes длительность аренды кратна получасу
	DurationStepMinutes = 30

	// DefaultAdvanceBookingDays горизонт бронирования по умолчанию
	DefaultAdvanceBookingDays = 90

	// DefaultPaymentExpiryMinutes время на оплату онлайн-брони
	DefaultPaymentExpiryMinutes = 15

	// DefaultInquiryTTLHours через сколько часов необработанная заявка истекает
	DefaultInquiryTTLHours = 72

	// DefaultSettingsCacheTTL время жизни кэша настроек в секундах
	DefaultSettingsCacheTTL = 60

	// DefaultSweepInterval период фоновой проверки просроченных броней в секундах
	DefaultSweepInterval = 60

	// SweepBatchSize сколько записей обрабатывается за один проход
	SweepBatchSize = 100

	// WorkerQueueSize размер очереди уведомлений в памяти
	WorkerQueueSize = 128

	DefaultBookingPrefix = "BK"
	DefaultInquiryPrefix = "INQ"
)
