package main

import (
	"log"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"tpdd-server/internal/config"
	"tpdd-server/internal/fsops"
	"tpdd-server/internal/server"
	"tpdd-server/internal/transport"
	"tpdd-server/internal/version"
)

var (
	flagConfig  string
	flagDevice  string
	flagBaud    int
	flagRTSCTS  bool
	flagModel   int
	flagDirs    []string
	flagImage   string
	flagLibDir  string
	flagROMFile string
	flagProfile string
	flagAttr    string
	flagDME     bool
	flagMagic   bool
	flagUpcase  bool
	flagTildes  bool
	flagRootLbl string
	flagUpLbl   string
	flagFDC     bool
	flagVerbose int
)

var rootCmd = &cobra.Command{
	Use:   "tpdd-server",
	Short: "Tandy Portable Disk Drive emulator",
	Long: `Emulates a TPDD1 or TPDD2 disk drive on a serial port.

In file-access mode a host directory is served as the disk, with
filenames translated to the selected client profile. With --image the
server answers sector-level access against a raw .pdd1/.pdd2 image
file instead.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagConfig, "config", "c", "", "path to config json file")
	pf.StringVarP(&flagDevice, "device", "d", "", "serial device connected to the client (e.g. /dev/ttyUSB0)")
	pf.IntVarP(&flagBaud, "baud", "s", 0, "baud rate")
	pf.BoolVar(&flagRTSCTS, "rtscts", false, "assert RTS/DTR for clients that need handshake lines")
	pf.CountVarP(&flagVerbose, "verbose", "v", "log more (repeatable)")

	// Persistent so the config subcommand reports the same effective
	// settings the server would run with.
	pf.IntVarP(&flagModel, "model", "m", 0, "drive model: 1 (TPDD1) or 2 (TPDD2); 0 detects from the image")
	pf.StringArrayVar(&flagDirs, "dir", nil, "share directory (give twice for TPDD2 bank 1)")
	pf.StringVarP(&flagImage, "image", "i", "", "serve a raw disk image file instead of a directory")
	pf.StringVar(&flagLibDir, "lib", "", "directory searched for loader files (DOS100.CO etc.)")
	pf.StringVar(&flagROMFile, "rom", "", "TPDD2 ROM dump backing the ROM address range")
	pf.StringVarP(&flagProfile, "profile", "p", "", "client compatibility profile or a \"base.ext[p]\" spec")
	pf.StringVarP(&flagAttr, "attr", "a", "", "default attribute byte (single character)")
	pf.BoolVar(&flagDME, "dme", true, "TS-DOS directory support")
	pf.BoolVar(&flagMagic, "magic", true, "resolve loader files from any directory")
	pf.BoolVar(&flagUpcase, "upcase", true, "translate filenames to uppercase")
	pf.BoolVar(&flagTildes, "tildes", true, "mark truncated filenames with a trailing ~")
	pf.StringVar(&flagRootLbl, "root-label", "", "TS-DOS label shown for the share root (up to 6 chars)")
	pf.StringVar(&flagUpLbl, "parent-label", "", "TS-DOS label shown for the parent directory")
	pf.BoolVar(&flagFDC, "fdc", false, "start in FDC mode instead of Operation mode")
}

// loadConfig folds defaults, config file, environment and flags, in that
// order.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return cfg, errors.Wrap(err, "load config")
	}
	cfg.ApplyEnv()

	set := cmd.Flags().Changed
	if set("device") {
		cfg.Device = flagDevice
	}
	if set("baud") {
		cfg.Baud = flagBaud
	}
	if set("rtscts") {
		cfg.RTSCTS = flagRTSCTS
	}
	if set("model") {
		cfg.Model = flagModel
	}
	if set("dir") {
		cfg.SharePaths = flagDirs
	}
	if set("image") {
		cfg.DiskImage = flagImage
	}
	if set("lib") {
		cfg.LibDir = flagLibDir
	}
	if set("rom") {
		cfg.ROMFile = flagROMFile
	}
	if set("profile") {
		cfg.Profile = flagProfile
	}
	if set("attr") {
		cfg.DefaultAttr = flagAttr
	}
	if set("dme") {
		v := flagDME
		cfg.DME = &v
	}
	if set("magic") {
		v := flagMagic
		cfg.MagicFiles = &v
	}
	if set("upcase") {
		v := flagUpcase
		cfg.Upcase = &v
	}
	if set("tildes") {
		cfg.Tildes = flagTildes
	}
	if set("root-label") {
		cfg.RootLabel = flagRootLbl
	}
	if set("parent-label") {
		cfg.ParentLabel = flagUpLbl
	}
	if set("fdc") {
		cfg.StartInFDCMode = flagFDC
	}
	if flagVerbose > 0 {
		cfg.Verbose = flagVerbose
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Device == "" {
		return errors.New("no serial device; use --device or CLIENT_TTY")
	}

	log.Printf("tpdd-server %s", version.Get().String())
	if cfg.DiskImage != "" {
		log.Printf("Disk image: %s", cfg.DiskImage)
	} else {
		for bank := 0; bank < config.Banks; bank++ {
			dir := cfg.SharePath(bank)
			if bank > 0 && dir == cfg.SharePath(0) {
				break
			}
			if total, free, err := fsops.DiskUsage(dir); err == nil {
				log.Printf("Share dir %d: %s (%s free of %s)", bank, dir,
					fsops.HumanBytes(free), fsops.HumanBytes(total))
			} else {
				log.Printf("Share dir %d: %s", bank, dir)
			}
		}
	}
	log.Printf("Listening on %s at %d baud", cfg.Device, cfg.Baud)

	for {
		conn, err := transport.OpenSerial(cfg.Device, cfg.Baud, cfg.RTSCTS)
		if err != nil {
			return err
		}
		s, err := server.New(cfg, conn)
		if err != nil {
			conn.Close()
			return err
		}
		if err := s.Serve(); err != nil {
			return err
		}
		// Client hung up; reopen the line and wait for the next session.
		log.Printf("Client disconnected, reopening %s", cfg.Device)
	}
}
