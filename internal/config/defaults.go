package config

const (
	defaultSpoolDir          = "~/.local/share/l2writer/spool"
	defaultDoneDir           = "~/.local/share/l2writer/done"
	defaultLogDir            = "~/.local/share/l2writer/logs"
	defaultStateDir          = "~/.local/share/l2writer/state"
	defaultFallbackAreaID    = "satproj"
	defaultWriterConcurrency = 4
	defaultCompression       = 6
	defaultPublisherName     = "l2producer"
	defaultPublisherURL      = "nats://127.0.0.1:4222"
	defaultSubjectPrefix     = "pytroll"
	defaultRequestTimeout    = 10
	defaultLockTimeout       = 300
	defaultLockRetryDelayMS  = 100
	defaultPollTimeoutMS     = 1000
	defaultIdleWaitMS        = 1000
	defaultQueueSize         = 64
	defaultSpoolPollInterval = 5
	defaultDoneRetention     = 7
	defaultObjectStoreRegion = "us-east-1"
	defaultOutboxRetention   = 14
	defaultLogLevel          = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			SpoolDir: defaultSpoolDir,
			DoneDir:  defaultDoneDir,
			LogDir:   defaultLogDir,
			StateDir: defaultStateDir,
		},
		Writer: Writer{
			FallbackAreaID: defaultFallbackAreaID,
			PublishVars:    map[string]string{},
			Concurrency:    defaultWriterConcurrency,
		},
		Save: Save{
			Compression: defaultCompression,
		},
		Publisher: Publisher{
			URLs:           []string{defaultPublisherURL},
			Name:           defaultPublisherName,
			SubjectPrefix:  defaultSubjectPrefix,
			RequestTimeout: defaultRequestTimeout,
		},
		Lock: Lock{
			AcquireTimeout: defaultLockTimeout,
			RetryDelayMS:   defaultLockRetryDelayMS,
		},
		Workflow: Workflow{
			PollTimeoutMS:     defaultPollTimeoutMS,
			IdleWaitMS:        defaultIdleWaitMS,
			QueueSize:         defaultQueueSize,
			SpoolPollInterval: defaultSpoolPollInterval,
			DoneRetentionDays: defaultDoneRetention,
		},
		ObjectStore: ObjectStore{
			Region: defaultObjectStoreRegion,
			UseSSL: true,
		},
		Outbox: Outbox{
			Enabled:       true,
			RetentionDays: defaultOutboxRetention,
		},
		Logging: Logging{
			Level: defaultLogLevel,
		},
	}
}
