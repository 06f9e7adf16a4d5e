package node

import (
	"encoding/json"
	"os"
	"path"
	"path/filepath"

	"gopkg.in/go-playground/validator.v9"

	"github.com/aethercycle/aethercycle-protocol-sub000/aec/acmodule"
	"github.com/aethercycle/aethercycle-protocol-sub000/common/errors"
	"github.com/aethercycle/aethercycle-protocol-sub000/common/log"
)

const (
	DefaultRPCAddr       = "localhost:9080"
	DefaultDataDirName   = "data"
	DefaultStoreName     = "protocol"
	DefaultCyclePollSecs = 60
)

// Well-known module addresses. The account book recognizes modules by
// address, so each component gets a fixed one.
var (
	EndowmentAddress = acmodule.MustParseAddress("0x0000000000000000000000000000000000000001")
	EngineAddress    = acmodule.MustParseAddress("0x0000000000000000000000000000000000000002")
	LPPoolAddress    = acmodule.MustParseAddress("0x0000000000000000000000000000000000000010")
	TokenPoolAddress = acmodule.MustParseAddress("0x0000000000000000000000000000000000000011")
	NFTPoolAddress   = acmodule.MustParseAddress("0x0000000000000000000000000000000000000012")
)

type GenesisAlloc struct {
	Address string `json:"address" validate:"required,acaddress"`
	Balance string `json:"balance" validate:"required"`
}

type Config struct {
	BaseDir string `json:"node_dir"`
	RPCAddr string `json:"rpc_addr" validate:"required"`

	LogLevel        string            `json:"log_level" validate:"omitempty,oneof=trace debug info warn error fatal panic"`
	ConsoleLevel    string            `json:"console_level" validate:"omitempty,oneof=trace debug info warn error fatal panic"`
	LogWriter       *log.WriterConfig `json:"log_writer,omitempty"`
	ModuleLogLevels map[string]string `json:"module_log_levels,omitempty"`

	AdminAddress     string `json:"admin_address" validate:"required,acaddress"`
	EmergencyAddress string `json:"emergency_address" validate:"required,acaddress"`

	ReleaseInterval int64 `json:"release_interval" validate:"min=86400,max=31536000"`
	DecayRateBps    int64 `json:"decay_rate_bps" validate:"min=1,max=10000"`
	Compounding     bool  `json:"compounding"`

	// Share of each cycle's release routed to the token and NFT pools,
	// in basis points. The remainder goes to the liquidity pool.
	TokenPoolShareBps int64 `json:"token_pool_share_bps" validate:"min=0,max=10000"`
	NFTPoolShareBps   int64 `json:"nft_pool_share_bps" validate:"min=0,max=10000"`

	CycleAuto     bool  `json:"cycle_auto"`
	CyclePollSecs int64 `json:"cycle_poll_secs" validate:"min=0"`

	EndowmentTokens int64          `json:"endowment_tokens" validate:"min=1"`
	Genesis         []GenesisAlloc `json:"genesis,omitempty" validate:"dive"`

	FilePath string `json:"-"` // absolute path of the config file
}

func DefaultConfig() *Config {
	return &Config{
		RPCAddr:           DefaultRPCAddr,
		LogLevel:          "debug",
		ConsoleLevel:      "trace",
		AdminAddress:      EngineAddress.String(),
		EmergencyAddress:  "0x0000000000000000000000000000000000000003",
		ReleaseInterval:   acmodule.DefaultPeriodLength,
		DecayRateBps:      int64(acmodule.DefaultDecayRate),
		Compounding:       true,
		TokenPoolShareBps: 5000,
		NFTPoolShareBps:   1000,
		CycleAuto:         false,
		CyclePollSecs:     DefaultCyclePollSecs,
		EndowmentTokens:   acmodule.EndowmentInitialTokens,
	}
}

func isACAddress(fl validator.FieldLevel) bool {
	_, err := acmodule.ParseAddress(fl.Field().String())
	return err == nil
}

// Validate checks field constraints. It does not touch the filesystem.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.RegisterValidation("acaddress", isACAddress); err != nil {
		return err
	}
	if err := v.Struct(c); err != nil {
		return errors.IllegalArgumentError.Wrap(err, "InvalidConfiguration")
	}
	if c.TokenPoolShareBps+c.NFTPoolShareBps > int64(acmodule.Rate(0).DenomInt64()) {
		return errors.BoundsError.Errorf(
			"InvalidPoolShares(token=%d,nft=%d)", c.TokenPoolShareBps, c.NFTPoolShareBps)
	}
	return nil
}

func (c *Config) SetFilePath(p string) {
	o := c.FilePath
	c.FilePath, _ = filepath.Abs(p)
	if c.BaseDir != "" {
		c.BaseDir = c.ResolveRelative(ResolveAbsolute(o, c.BaseDir))
	}
}

func (c *Config) ResolveAbsolute(targetPath string) string {
	return ResolveAbsolute(c.FilePath, targetPath)
}

func (c *Config) ResolveRelative(targetPath string) string {
	absPath, _ := filepath.Abs(targetPath)
	base, _ := filepath.Abs(filepath.Dir(c.FilePath))
	r, _ := filepath.Rel(base, absPath)
	return r
}

func ResolveAbsolute(baseFile, targetPath string) string {
	if filepath.IsAbs(targetPath) {
		return targetPath
	}
	if baseFile == "" {
		r, _ := filepath.Abs(targetPath)
		return r
	}
	if !filepath.IsAbs(baseFile) {
		baseFile, _ = filepath.Abs(baseFile)
	}
	return filepath.Clean(path.Join(filepath.Dir(baseFile), targetPath))
}

func (c *Config) AbsBaseDir() string {
	return c.ResolveAbsolute(c.BaseDir)
}

func (c *Config) Save() error {
	if c.FilePath == "" {
		return errors.StateError.New("NoConfigurationPath")
	}
	bs, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.FilePath), 0700); err != nil {
		return err
	}
	return os.WriteFile(c.FilePath, append(bs, '\n'), 0644)
}
