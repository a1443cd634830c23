package config

import (
	"io/fs"
	"time"
)

// -----------------------------------------------------------------------------
// Build Information
// -----------------------------------------------------------------------------

// Build variables are injected via -ldflags.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// UserAgent identifies the HTTP server in responses.
var UserAgent = "Card-Countdown/" + Version

// -----------------------------------------------------------------------------
// Application Constants
// -----------------------------------------------------------------------------

const (
	AppName        = "Card Countdown"
	AppID          = "com.github.tartampluch.card-countdown"
	KeyringService = "com.github.tartampluch.card-countdown"
	LogFileName    = "app.log"
	StoreFileName  = "config.json"
	ImagesDirName  = "images"
)

// -----------------------------------------------------------------------------
// Exit Codes
// -----------------------------------------------------------------------------

const (
	ExitCodeSuccess = 0
	ExitCodeError   = 1
	// ExitCodeRestart asks the service supervisor to start the process again.
	ExitCodeRestart = 75
)

// -----------------------------------------------------------------------------
// System & File Permissions
// -----------------------------------------------------------------------------

const (
	// FilePermUserRW represents -rw------- (Read/Write for owner only).
	FilePermUserRW fs.FileMode = 0600

	// FilePermShared represents -rw-r--r--, used for frames and images read by other processes.
	FilePermShared fs.FileMode = 0644

	// DirPermUserRWX represents drwx------ (Read/Write/Exec for owner only).
	DirPermUserRWX fs.FileMode = 0700

	// DirPermShared represents drwxr-xr-x.
	DirPermShared fs.FileMode = 0755

	// ChannelBufferSize defines the standard buffer size for internal signaling channels.
	ChannelBufferSize = 1
)

// -----------------------------------------------------------------------------
// CLI Flags & Descriptions
// -----------------------------------------------------------------------------

const (
	FlagVersion      = "version"
	FlagDebug        = "debug"
	FlagConfig       = "config"
	FlagDescVersion  = "Show application version and exit"
	FlagDescDebug    = "Enable debug logging to stdout"
	FlagDescConfig   = "Path to the YAML settings file"
	MsgVersionOutput = "%s version %s (%s/%s)\n"
)

// -----------------------------------------------------------------------------
// Environment Overrides
// -----------------------------------------------------------------------------

const (
	EnvFile           = ".env"
	EnvListenAddr     = "COUNTDOWN_LISTEN_ADDR"
	EnvDataDir        = "COUNTDOWN_DATA_DIR"
	EnvLanguage       = "COUNTDOWN_LANGUAGE"
	EnvTimezone       = "COUNTDOWN_TIMEZONE"
	EnvSensorType     = "COUNTDOWN_SENSOR_TYPE"
	EnvSensorEndpoint = "COUNTDOWN_SENSOR_ENDPOINT"
)

// -----------------------------------------------------------------------------
// Default Values & Business Logic
// -----------------------------------------------------------------------------

const (
	DefaultConfigPath    = "countdown.yaml"
	DefaultListenAddr    = "0.0.0.0:8080"
	DefaultDataDir       = "data"
	DefaultCapacity      = 20 // MAX_COUNTDOWNS on the panel firmware
	DefaultLanguage      = "en"
	DefaultTimezone      = "Local"
	DefaultPollInterval  = 1 * time.Second
	DefaultMidnightCheck = 60 * time.Second
	DefaultScanWindow    = 10 * time.Second
	DefaultLeapYear      = 2000 // Leap year fallback for dates like --02-29

	DefaultFrameWidth  = 800
	DefaultFrameHeight = 480
	DefaultFrameFile   = "frame.png"

	DefaultSensorType     = SensorTypeNone
	DefaultSensorTimeout  = 500 * time.Millisecond
	DefaultSensorSlaveID  = 1
	DefaultSensorBaudRate = 9600

	// MaxUIDBytes bounds the UID read from the reader (ISO 14443 triple size is 10 bytes).
	MaxUIDBytes = 10
)

// SupportedLanguages lists the panel languages with embedded locale files.
var SupportedLanguages = []string{"en", "de"}

// -----------------------------------------------------------------------------
// Sensor Backends
// -----------------------------------------------------------------------------

const (
	SensorTypeModbus = "modbus"
	SensorTypeFile   = "file"
	SensorTypeNone   = "none"

	SchemeTCP = "tcp"
	SchemeRTU = "rtu"
)

// -----------------------------------------------------------------------------
// Data Formats & Limits
// -----------------------------------------------------------------------------

const (
	// DateFormatISO is the only date layout accepted at the API and store boundary.
	DateFormatISO = "2006-01-02"

	// Date layouts used for parsing vCard BDAY fields
	DateFormatFullBasic = "20060102"
	DateFormatRFC3339   = time.RFC3339
	DateFormatFullT     = "2006-01-02T15:04:05Z"
	DateFormatNoYearD   = "--01-02"
	DateFormatNoYearB   = "--0102"

	MaxNameLength  = 64
	MaxUIDLength   = 2 * MaxUIDBytes
	MaxUploadSize  = 2 * 1024 * 1024 // panel-sized BMPs are well below this
	MaxBodySize    = 64 * 1024
	MaxImportSize  = 4 * 1024 * 1024
	ExtBMP         = ".bmp"
	VCardUIDProp   = "X-COUNTDOWN-UID"
	VCardBDAY      = "BDAY"
	VCardFN        = "FN"
	VCardN         = "N"
	FallbackName   = "Unknown"
	FormParamFile  = "file"
	URLParamUID    = "uid"
	URLParamName   = "name"
	ImagesURLRoute = "/images/"
)

// -----------------------------------------------------------------------------
// Standards: iCalendar
// -----------------------------------------------------------------------------

const (
	ICalVersion = "2.0"
	ICalProdid  = "-//Card Countdown//Engine//EN"
	ICalCalName = "Countdowns"
	ICalMethod  = "PUBLISH"
	ICalScale   = "GREGORIAN"
	ICalDomain  = "countdown"

	PropUID        = "UID"
	PropSummary    = "SUMMARY"
	PropDTStart    = "DTSTART"
	PropDTStamp    = "DTSTAMP"
	PropRefresh    = "REFRESH-INTERVAL"
	PropVersion    = "VERSION"
	PropProdid     = "PRODID"
	PropXWRCalName = "X-WR-CALNAME"
	PropCalScale   = "CALSCALE"
	PropMethod     = "METHOD"

	FormatEventUID = "%s@%s"

	DefaultICalRefresh = 1 * time.Hour

	// StubVCalendar is the minimal valid iCalendar object used when no events exist.
	StubVCalendar = "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:" + ICalProdid + "\r\nEND:VCALENDAR\r\n"
)

// -----------------------------------------------------------------------------
// Network & Timeouts
// -----------------------------------------------------------------------------

const (
	ShutdownTimeout    = 5 * time.Second
	ServerReadTimeout  = 10 * time.Second
	ServerWriteTimeout = 30 * time.Second
	ServerIdleTimeout  = 60 * time.Second
	RequestTimeout     = 30 * time.Second
	RestartDelay       = 500 * time.Millisecond
	RetryAfterSeconds  = "10"
	HTTPTimeout        = 30 * time.Second
	SchemeHTTP         = "http"
	SchemeHTTPS        = "https"
	AllowedMethods     = "GET, HEAD"
)

// -----------------------------------------------------------------------------
// HTTP Routes
// -----------------------------------------------------------------------------

const (
	RouteCountdowns  = "/api/countdowns"
	RouteCountdown   = "/api/countdowns/{uid}"
	RouteScanCard    = "/api/scan-card"
	RouteWiFi        = "/api/wifi"
	RouteStatus      = "/api/status"
	RouteRestart     = "/api/restart"
	RouteUploadImage = "/api/upload-image"
	RouteImages      = "/api/images"
	RouteImage       = "/api/images/{name}"
	RouteImportVCard = "/api/import/vcard"
	RouteFrame       = "/api/frame.png"
	RouteCalendar    = "/calendar.ics"
	RouteStatic      = "/*"
)

// -----------------------------------------------------------------------------
// HTTP Headers & MIME Types
// -----------------------------------------------------------------------------

const (
	HeaderContentType     = "Content-Type"
	HeaderCacheControl    = "Cache-Control"
	HeaderETag            = "ETag"
	HeaderLastModified    = "Last-Modified"
	HeaderRetryAfter      = "Retry-After"
	HeaderAllow           = "Allow"
	HeaderXContentType    = "X-Content-Type-Options"
	HeaderIfNoneMatch     = "If-None-Match"
	HeaderIfModifiedSince = "If-Modified-Since"
	HeaderUserAgent       = "User-Agent"

	MimeTextCalendar    = "text/calendar; charset=utf-8"
	MimeImagePNG        = "image/png"
	MimeJSON            = "application/json"
	MimeNoSniff         = "nosniff"
	CacheControlPrivate = "private, no-cache"

	// FormatETag expects a string argument.
	FormatETag = `"%s"`
)

// -----------------------------------------------------------------------------
// Error Messages (Technical/Logs/API)
// -----------------------------------------------------------------------------

const (
	ErrAppFailed        = "application failed unexpectedly"
	ErrLogFile          = "failed to open log file"
	ErrCacheDir         = "could not determine user cache dir"
	ErrCreateDir        = "could not create directory"
	ErrSettingsRead     = "failed to read settings file"
	ErrSettingsParse    = "failed to parse settings file"
	ErrSettingsInvalid  = "invalid settings"
	ErrTimezone         = "unknown timezone"
	ErrServerStartup    = "server startup failed"
	ErrServerShutdown   = "server shutdown failed"
	ErrListenRequired   = "listen address is required"
	ErrWriteResp        = "failed to write response body"
	ErrStoreLoad        = "failed to load record store"
	ErrStoreSave        = "failed to save record store"
	ErrStoreDecode      = "record store file is corrupt"
	ErrCapacity         = "maximum number of countdowns reached"
	ErrDuplicateUID     = "a countdown for this card already exists"
	ErrNotFound         = "countdown not found"
	ErrUIDImmutable     = "card UID cannot be changed"
	ErrUIDRequired      = "card UID is required"
	ErrKeyringWrite     = "failed to store WiFi password"
	ErrKeyringRead      = "failed to read WiFi password"
	ErrDateParse        = "unable to parse date"
	ErrInvalidDate      = "invalid date"
	ErrInvalidJSON      = "invalid JSON"
	ErrInvalidBody      = "invalid request body"
	ErrSensorRead       = "card sensor read failed"
	ErrSensorEndpoint   = "invalid sensor endpoint"
	ErrSensorType       = "unsupported sensor type"
	ErrSensorShortRead  = "short register read from card reader"
	ErrSensorUIDLength  = "card reader reported an invalid UID length"
	ErrRender           = "frame rendering failed"
	ErrFrameWrite       = "failed to write frame"
	ErrImageDecode      = "image is not a valid BMP"
	ErrImageStore       = "failed to store image"
	ErrImageList        = "failed to list images"
	ErrImageMissing     = "multipart field 'file' is required"
	ErrImageName        = "invalid image file name"
	ErrImageNotFound    = "image not found"
	ErrImageDelete      = "failed to delete image"
	ErrWiFiSSID         = "SSID is required"
	ErrImportSource     = "request must carry a vCard body or a JSON url"
	ErrICalEncode       = "failed to encode iCalendar data"
	ErrVCardParse       = "failed to parse vCard stream"
	ErrInvalidURL       = "invalid address book URL"
	ErrProtocol         = "unsupported protocol scheme"
	ErrFetchRequest     = "failed to create address book request"
	ErrFetchNetwork     = "network error during address book fetch"
	ErrFetchStatus      = "address book server returned unexpected status"
	ErrLocalesAccess    = "failed to access embedded locales"
	ErrLocaleLoad       = "failed to load locale file"
	ErrNoCardSeen       = "no card found, hold the card close to the reader"
	ErrRestartNotWired  = "restart is not available"
	HTTPMsgInitializing = "Frame initializing, please try again shortly."
	HTTPMsgMethodNotAll = "Method Not Allowed"
)

// -----------------------------------------------------------------------------
// Log Messages
// -----------------------------------------------------------------------------

const (
	MsgAppStarting     = "Starting application"
	MsgAppStop         = "Application stopped gracefully"
	MsgLogWarning      = "Warning: %s at %s: %v\n"
	MsgSettingsLoaded  = "Settings loaded"
	MsgSettingsDefault = "Settings file not found, using defaults"
	MsgEnvLoaded       = "Environment file loaded"
	MsgServerListen    = "HTTP server listening"
	MsgServerStop      = "Shutting down HTTP server..."
	MsgFeedUpdated     = "Feed cache updated"
	MsgLoopStart       = "Control loop started"
	MsgLoopStop        = "Control loop stopping due to context cancellation"
	MsgPresence        = "Card presence changed"
	MsgRender          = "Rendering frame"
	MsgSensorFailure   = "Sensor read failed, retrying next tick"
	MsgInvalidated     = "Displayed card invalidated by edit"
	MsgMidnight        = "Calendar day advanced, refreshing countdown"
	MsgStoreLoaded     = "Record store loaded"
	MsgStoreCreated    = "Record store file missing, created empty store"
	MsgStoreSaved      = "Record store saved"
	MsgCalendarBuilt   = "Calendar generation successful"
	MsgImportDone      = "vCard import finished"
	MsgSkippedCard     = "Skipping malformed vCard"
	MsgSkippedDate     = "Skipping invalid date format"
	MsgSkippedNoUID    = "Skipping vCard without card UID"
	MsgImageStored     = "Image stored"
	MsgImageDeleted    = "Image deleted"
	MsgRequest         = "HTTP request"
	MsgRecordChanged   = "Countdown changed"
	MsgWiFiSaved       = "WiFi settings saved. Restart required."
	MsgRestartReq      = "Restart requested"
	MsgRestarting      = "Restarting..."
	MsgLocaleSkip      = "Skipping non-locale file"
	MsgLocaleBadName   = "Skipping malformed locale filename"
	MsgLocaleLoaded    = "Locale loaded successfully"
	MsgTransMissing    = "Missing translation key"
	MsgSensorReady     = "Card sensor ready"
	MsgFrameWritten    = "Frame written"
	MsgCardImage       = "Card image unavailable"
	MsgFetchStart      = "Downloading address book"
	MsgFetchBadStatus  = "Address book server returned error status"
)

// -----------------------------------------------------------------------------
// Translation Keys (Panel Labels)
// -----------------------------------------------------------------------------

const (
	TKeyWelcomeTitle = "welcome_title"
	TKeyWelcomeHint  = "welcome_hint"
	TKeyWelcomeSetup = "welcome_setup"
	TKeyNoCardTitle  = "nocard_title"
	TKeyNoCardHint1  = "nocard_hint_1"
	TKeyNoCardHint2  = "nocard_hint_2"
	TKeyErrorTitle   = "error_title"
	TKeyInvalidDate  = "error_invalid_date"
	TKeyDays         = "label_days"     // Requires Count (plural)
	TKeyDaysAgo      = "label_days_ago" // Requires Count (plural)
	TKeyToday        = "label_today"
	TKeyDate         = "label_date" // Requires Date
)

// -----------------------------------------------------------------------------
// Fallbacks
// -----------------------------------------------------------------------------

const (
	FallbackWelcomeTitle = "Countdown Display"
	FallbackWelcomeHint  = "Please present an RFID card"
	FallbackWelcomeSetup = "Connect to the web interface to configure"
	FallbackNoCardTitle  = "No countdown assigned"
	FallbackNoCardHint1  = "Please configure this card"
	FallbackNoCardHint2  = "in the web interface"
	FallbackErrorTitle   = "Error"
	FallbackInvalidDate  = "Invalid date"
	FallbackDay          = "day"
	FallbackDays         = "days"
	FallbackDayAgo       = "day ago"
	FallbackDaysAgo      = "days ago"
	FallbackToday        = "Today!"
	FallbackDate         = "Date: {{.Date}}"
)

// -----------------------------------------------------------------------------
// Structured Logging Keys (slog)
// -----------------------------------------------------------------------------

const (
	LogKeyComponent = "component"
	LogKeyError     = "error"
	LogKeyPath      = "path"
	LogKeyStatus    = "status_code"
	LogKeyMethod    = "method"
	LogKeyRoute     = "route"
	LogKeyFile      = "file"
	LogKeyLang      = "lang"
	LogKeyKey       = "key"
	LogKeyAddr      = "addr"
	LogKeyUID       = "uid"
	LogKeyPrevUID   = "prev_uid"
	LogKeyEvent     = "event"
	LogKeyDecision  = "decision"
	LogKeyState     = "state"
	LogKeyName      = "name"
	LogKeyDays      = "days_remaining"
	LogKeyDate      = "target_date"
	LogKeySensor    = "sensor"
	LogKeyEndpoint  = "endpoint"
	LogKeyCount     = "count"
	LogKeySkipped   = "skipped"
	LogKeySizeBytes = "size_bytes"
	LogKeyETag      = "etag"
	LogKeyFeed      = "feed"
	LogKeyValue     = "value"
	LogKeyDuration  = "duration_ms"
	LogKeySSID      = "ssid"
	LogKeyInterval  = "interval"
	LogKeyURL       = "url"
	LogKeyLength    = "content_length"
	LogKeyRemote    = "remote_ip"

	// Startup Info Keys
	LogKeyBuild   = "build"
	LogKeyApp     = "app"
	LogKeyVersion = "version"
	LogKeyGoVer   = "go_version"
	LogKeyEnv     = "env"
	LogKeyOS      = "os"
	LogKeyArch    = "arch"
	LogKeyPID     = "pid"
)

// -----------------------------------------------------------------------------
// Log Components
// -----------------------------------------------------------------------------

const (
	CompMain    = "main"
	CompEngine  = "engine"
	CompLoop    = "loop"
	CompStore   = "store"
	CompSensor  = "sensor"
	CompDisplay = "display"
	CompServer  = "server"
	CompI18n    = "i18n"
	CompFetcher = "fetcher"
)
