package peerline

import (
	"github.com/peerline/peerline/src/config"
	"github.com/peerline/peerline/src/crypto/keys"
	"github.com/peerline/peerline/src/directory"
	"github.com/peerline/peerline/src/node"
	"github.com/peerline/peerline/src/service"
	"github.com/peerline/peerline/src/store"
	"github.com/peerline/peerline/src/substrate"
)

// Peerline is the top-level engine wiring a substrate, a profile store, the
// peer node, and the HTTP API together.
type Peerline struct {
	Config    *config.Config
	Substrate substrate.Substrate
	Directory *directory.Client
	Store     store.Store
	Node      *node.PeerNode
	Service   *service.Service
}

// NewPeerline is a factory method that returns a Peerline instance with a
// config object. Call Init before Run.
func NewPeerline(conf *config.Config) *Peerline {
	engine := &Peerline{
		Config: conf,
	}

	return engine
}

func (p *Peerline) initKey() error {
	if p.Config.Key == nil {
		keyfile := keys.NewSimpleKeyfile(p.Config.Keyfile())

		privKey, err := keyfile.ReadKey()
		if err != nil {
			p.Config.Logger().Warn("Cannot read private key from file", err)

			privKey, err = keys.GenerateECDSAKey()
			if err != nil {
				p.Config.Logger().Error("Cannot generate a new private key", err)
				return err
			}

			if err := keyfile.WriteKey(privKey); err != nil {
				p.Config.Logger().Error("Cannot write private key to file", err)
				return err
			}

			p.Config.Logger().WithField("file", p.Config.Keyfile()).Info("Created a new key")
		}

		p.Config.Key = privKey
	}

	return nil
}

// initSubstrate joins the p2p substrate with a peer ID derived from the
// node's public key. A substrate set before Init, like a shared in-memory
// network in tests, is kept as is.
func (p *Peerline) initSubstrate() error {
	if p.Substrate == nil {
		network := substrate.NewInmemNetwork()
		p.Substrate = network.Join(keys.PeerID(&p.Config.Key.PublicKey))

		p.Config.Logger().Debug("created standalone in-mem substrate")
	}

	p.Directory = directory.NewClient(p.Substrate,
		p.Config.Logger().WithField("peer_id", p.Substrate.LocalID()))

	return nil
}

func (p *Peerline) initStore() error {
	if !p.Config.Store {
		p.Store = store.NewInmemStore()

		p.Config.Logger().Debug("created new in-mem store")
	} else {
		p.Config.Logger().WithField("path", p.Config.DatabaseDir).Debug("Attempting to load or create database")

		badgerStore, err := store.NewBadgerStore(p.Config.DatabaseDir)
		if err != nil {
			return err
		}

		p.Store = badgerStore
	}

	return nil
}

func (p *Peerline) initNode() error {
	p.Node = node.NewPeerNode(
		p.Config,
		p.Substrate,
		p.Directory,
		p.Store,
	)

	return nil
}

func (p *Peerline) initService() error {
	if !p.Config.NoService {
		p.Service = service.NewService(
			p.Config.ServiceAddr,
			p.Node,
			p.Directory,
			p.Config.Logger(),
		)
	}

	return nil
}

// Init initializes all the engine's components in the right order.
func (p *Peerline) Init() error {
	if err := p.initKey(); err != nil {
		return err
	}

	if err := p.initSubstrate(); err != nil {
		return err
	}

	if err := p.initStore(); err != nil {
		return err
	}

	if err := p.initNode(); err != nil {
		return err
	}

	if err := p.initService(); err != nil {
		return err
	}

	return nil
}

// Run starts the node's gossip loop and serves the HTTP API. It blocks until
// the service returns.
func (p *Peerline) Run() {
	if p.Service != nil {
		p.Node.RunAsync()
		p.Service.Serve()
	} else {
		p.Node.Run()
	}
}
