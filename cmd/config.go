package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"gooze.dev/pkg/rebundle/internal/domain"
	m "gooze.dev/pkg/rebundle/internal/model"
)

const (
	configVersionKey     = "version"
	currentConfigVersion = 1

	configBaseName   = "rebundle"
	configFileName   = configBaseName + ".yaml"
	configFolderPath = "."

	envPrefix = "REBUNDLE"

	verboseFlagName         = "verbose"
	dryRunFlagName          = "dry-run"
	runtimeDirFlagName      = "runtime-dir"
	installDirFlagName      = "install-dir"
	referenceFlagName       = "reference"
	fixInstallNamesFlagName = "fix-install-names"
	reportFlagName          = "report"
	metricsFlagName         = "metrics-textfile"
	fromFlagName            = "from"
	toFlagName              = "to"

	runtimeDirKey   = "runtime.dir"
	ledgerNameKey   = "runtime.ledger"
	skipPatternsKey = "runtime.skip_patterns"
	skipDirsKey     = "runtime.skip_dirs"
	maxFileSizeKey  = "runtime.max_file_size"

	installDirKey      = "portabilize.install_dir"
	activateScriptKey  = "portabilize.activate_script"
	entryPointKey      = "portabilize.entry_point"
	shebangKey         = "portabilize.shebang"
	packagesKey        = "portabilize.packages"
	managerKey         = "portabilize.manager"
	referenceKey       = "portabilize.reference"
	sitePackagesKey    = "portabilize.site_packages"
	validateScriptsKey = "portabilize.validate_scripts"
	fixInstallNamesKey = "portabilize.fix_install_names"
	installNameToolKey = "portabilize.install_name_tool"
	linksKey           = "portabilize.links"

	reportPathKey      = "report.path"
	metricsTextfileKey = "metrics.textfile"

	defaultActivateScript  = "bin/activate"
	defaultEntryPoint      = "bin/conda"
	defaultManager         = "conda"
	defaultInstallNameTool = "install_name_tool"

	logFilenameKey   = "log.filename"
	logLevelKey      = "log.level"
	logConsoleKey    = "log.console_level"
	logVerboseKey    = "log.verbose"
	logMaxSizeKey    = "log.max_size"
	logMaxBackupsKey = "log.max_backups"
	logMaxAgeKey     = "log.max_age"
	logCompressKey   = "log.compress"

	defaultLogFilename   = ".rebundle.log"
	defaultLogLevel      = int(slog.LevelInfo)
	defaultConsoleLevel  = "error"
	defaultLogVerbose    = false
	defaultLogMaxSize    = 10
	defaultLogMaxBackups = 3
	defaultLogMaxAge     = 28
	defaultLogCompress   = true
)

var globalLogger *slog.Logger

func init() {
	viper.SetConfigName(configBaseName)
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configFolderPath)
	viper.SetConfigFile(filepath.Join(configFolderPath, configFileName))
	viper.AutomaticEnv()
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	setDefaults()

	if err := readConfigFile(viper.GetViper()); err != nil {
		fmt.Fprintf(os.Stderr, "warning: ignoring %s: %v\n", configFileName, err)
	}
}

// readConfigFile loads the config file into v. A missing file is not an error.
func readConfigFile(v *viper.Viper) error {
	err := v.ReadInConfig()
	if err == nil {
		return nil
	}

	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return err
}

func setDefaults() {
	classifier := domain.DefaultClassifierOptions()

	viper.SetDefault(configVersionKey, currentConfigVersion)

	viper.SetDefault(runtimeDirKey, domain.DefaultRuntimeDir)
	viper.SetDefault(ledgerNameKey, domain.DefaultLedgerName)
	viper.SetDefault(skipPatternsKey, classifier.SkipPatterns)
	viper.SetDefault(skipDirsKey, classifier.SkipDirs)
	viper.SetDefault(maxFileSizeKey, int64(0))

	viper.SetDefault(installDirKey, domain.DefaultInstallDir)
	viper.SetDefault(activateScriptKey, defaultActivateScript)
	viper.SetDefault(entryPointKey, defaultEntryPoint)
	viper.SetDefault(shebangKey, domain.DefaultShebang)
	viper.SetDefault(packagesKey, domain.DefaultBackfillPackages)
	viper.SetDefault(managerKey, defaultManager)
	viper.SetDefault(referenceKey, "")
	viper.SetDefault(sitePackagesKey, "")
	viper.SetDefault(validateScriptsKey, true)
	viper.SetDefault(fixInstallNamesKey, false)
	viper.SetDefault(installNameToolKey, defaultInstallNameTool)
	viper.SetDefault(linksKey, []domain.LibraryLink{})

	viper.SetDefault(reportPathKey, "")
	viper.SetDefault(metricsTextfileKey, "")

	// Logging defaults (used by config/env and as fallbacks for flags).
	viper.SetDefault(logFilenameKey, defaultLogFilename)
	viper.SetDefault(logLevelKey, defaultLogLevel)
	viper.SetDefault(logConsoleKey, defaultConsoleLevel)
	viper.SetDefault(logVerboseKey, defaultLogVerbose)
	viper.SetDefault(logMaxSizeKey, defaultLogMaxSize)
	viper.SetDefault(logMaxBackupsKey, defaultLogMaxBackups)
	viper.SetDefault(logMaxAgeKey, defaultLogMaxAge)
	viper.SetDefault(logCompressKey, defaultLogCompress)
}

// layoutFromConfig returns the bundle layout configured under runtime.*.
func layoutFromConfig() domain.Layout {
	return domain.Layout{
		RuntimeDir: viper.GetString(runtimeDirKey),
		LedgerName: viper.GetString(ledgerNameKey),
	}
}

func classifierFromConfig() domain.ClassifierOptions {
	return domain.ClassifierOptions{
		SkipPatterns: viper.GetStringSlice(skipPatternsKey),
		SkipDirs:     viper.GetStringSlice(skipDirsKey),
		MaxFileSize:  viper.GetInt64(maxFileSizeKey),
	}
}

// portabilizeFromConfig builds the orchestrator settings for bundle.
func portabilizeFromConfig(bundle m.Path) (domain.PortabilizeConfig, error) {
	var links []domain.LibraryLink
	if err := viper.UnmarshalKey(linksKey, &links); err != nil {
		return domain.PortabilizeConfig{}, err
	}

	cfg := domain.DefaultPortabilizeConfig(bundle)
	cfg.Layout = layoutFromConfig()
	cfg.InstallDir = viper.GetString(installDirKey)
	cfg.Classifier = classifierFromConfig()
	cfg.ActivateScript = viper.GetString(activateScriptKey)
	cfg.EntryPoint = viper.GetString(entryPointKey)
	cfg.Shebang = viper.GetString(shebangKey)
	cfg.ValidateScripts = viper.GetBool(validateScriptsKey)
	cfg.Backfill = domain.BackfillOptions{
		Packages:     viper.GetStringSlice(packagesKey),
		Manager:      viper.GetString(managerKey),
		Reference:    m.Path(viper.GetString(referenceKey)),
		SitePackages: viper.GetString(sitePackagesKey),
	}
	cfg.FixInstallNames = viper.GetBool(fixInstallNamesKey)
	cfg.InstallNameTool = viper.GetString(installNameToolKey)
	cfg.Links = links

	return cfg, nil
}

func parseSlogLevel(value string, defaultLevel slog.Level) slog.Level {
	level := strings.ToLower(strings.TrimSpace(value))
	if level == "" {
		return defaultLevel
	}

	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}

	// Allow numeric slog levels as well (e.g. -4 for debug).
	if n, err := strconv.Atoi(level); err == nil {
		return slog.Level(n)
	}

	return defaultLevel
}

// configureLogger configures the global slog logger.
//
// Records go to a rotated log file and, at console level or above, to
// stderr. With verbose set both sinks log at Debug.
func configureLogger(logPath string, verbose bool) {
	if strings.TrimSpace(logPath) == "" {
		logPath = viper.GetString(logFilenameKey)
	}

	if strings.TrimSpace(logPath) == "" {
		logPath = defaultLogFilename
	}

	logLevel := parseSlogLevel(viper.GetString(logLevelKey), slog.LevelInfo)
	consoleLevel := parseSlogLevel(viper.GetString(logConsoleKey), slog.LevelError)

	if verbose {
		logLevel = slog.LevelDebug
		consoleLevel = slog.LevelDebug
	}

	logWriter := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    viper.GetInt(logMaxSizeKey),
		MaxBackups: viper.GetInt(logMaxBackupsKey),
		MaxAge:     viper.GetInt(logMaxAgeKey),
		Compress:   viper.GetBool(logCompressKey),
	}

	fileHandler := slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		AddSource: true,
		Level:     logLevel,
	})

	console := log.NewWithOptions(os.Stderr, log.Options{
		Prefix: configBaseName,
		Level:  log.Level(consoleLevel),
	})

	globalLogger = slog.New(newFanoutHandler(fileHandler, console))
	slog.SetDefault(globalLogger)
}
