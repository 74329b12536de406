package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/Jak3Gil/Melvin-Research/onboard"
	"github.com/Jak3Gil/Melvin-Research/onboard/canbus"
	"github.com/Jak3Gil/Melvin-Research/onboard/l91"
	"github.com/abiosoft/ishell"
	"github.com/asdine/storm/v3"
	"github.com/caarlos0/env/v6"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"gopkg.in/yaml.v2"
)

type EnvConfig struct {
	DEBUG   bool   `env:"DEBUG" envDefault:"0"`
	SRCDIR  string `env:"SRCDIR" envDefault:"."`
	DATADIR string `env:"DATADIR" envDefault:"./tmp"`

	DB        *storm.DB
	Bridge    *onboard.Bridge
	Journal   *Journal
	Simulated bool
}

var (
	ENV *EnvConfig
)

func init() {
	// Load main config
	ENV = new(EnvConfig)
	env.Parse(ENV)
}

func main() {
	// process flags
	simulated := flag.Bool("sim", false, "Run without motor hardware; frames are logged instead")
	port := flag.String("port", "0.0.0.0:8080", "Specify the ip:port to listen on")
	configPath := flag.String("config", "", "Path to bridge_config.yaml")
	flag.Parse()

	// Load the deployment config so everything downstream knows which
	// motors exist
	filename := *configPath
	var err error
	if filename == "" {
		filename, err = filepath.Abs(ENV.SRCDIR + "/bridge_config.yaml")
		if err != nil {
			panic(err)
		}
	}
	yamlFile, err := os.ReadFile(filename)
	if err != nil {
		panic(fmt.Sprintf("Unable to read yaml file: %v", err))
	}

	var config onboard.BridgeConfig
	err = yaml.Unmarshal(yamlFile, &config)
	if err != nil {
		panic(fmt.Sprintf("Unable to unmarshal yaml: %v", err))
	}

	// setup the journal database
	if _, err := os.Stat(ENV.DATADIR); os.IsNotExist(err) {
		os.MkdirAll(ENV.DATADIR, 0755)
	}
	db, err := openDb(filepath.Join(ENV.DATADIR, "journal.db"))
	if err != nil {
		panic(err)
	}
	ENV.DB = db
	defer ENV.DB.Close()

	// serial side: real adapter or the simulator
	ENV.Simulated = *simulated
	var serialPort l91.Port
	if ENV.Simulated {
		println("Running in simulator mode, no frames reach hardware")
		serialPort = new(l91.SimPort)
	} else {
		serialPort, err = l91.OpenPort(config.Serial.Port, config.Serial.Baud)
		if err != nil {
			panic(fmt.Sprintf("Unable to open L91 serial port: %v", err))
		}
	}
	motors := l91.NewController(serialPort, config.Settle.Durations())

	// CAN side
	bus, err := canbus.NewCANBus(config.CAN.Interface)
	if err != nil {
		panic(fmt.Sprintf("Unable to open CAN interface %s: %v", config.CAN.Interface, err))
	}

	bridge, err := onboard.NewBridge(bus, motors, config)
	if err != nil {
		panic(fmt.Sprintf("Unable to initialize bridge: %v", err))
	}
	ENV.Bridge = bridge

	// bring the motors up before any commands flow
	bridge.Startup()

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		if err := bridge.Run(ctx); err != nil && ctx.Err() == nil {
			log.Fatalf("bridge loop failed: %v", err)
		}
	}()

	ENV.Journal = NewJournal(db, bridge, 10000)
	go ENV.Journal.Run(ctx)

	//---
	// Create a local shell
	//---
	{
		motorNames := func([]string) []string {
			names := make([]string, 0, len(bridge.Motors()))
			for _, m := range bridge.Motors() {
				names = append(names, m.Name)
			}
			return names
		}

		shell := ishell.New()
		shell.Println("Melvin motor bridge shell")
		shell.ShowPrompt(true)

		shell.AddCmd(&ishell.Cmd{
			Name:      "move",
			Completer: motorNames,
			Help:      "move <motor> <speed -1.0..1.0>",
			Func: func(c *ishell.Context) {
				if len(c.Args) != 2 {
					c.Err(fmt.Errorf("usage: move <motor> <speed>"))
					return
				}
				speed, err := strconv.ParseFloat(c.Args[1], 64)
				if err != nil {
					c.Err(err)
					return
				}
				c.Printf("Moving %s at %.3f\n", c.Args[0], speed)
				if err := bridge.Command(c.Args[0], speed); err != nil {
					c.Err(err)
				}
			},
		})

		shell.AddCmd(&ishell.Cmd{
			Name:      "stop",
			Completer: motorNames,
			Help:      "stop <motor>",
			Func: func(c *ishell.Context) {
				if len(c.Args) != 1 {
					c.Err(fmt.Errorf("usage: stop <motor>"))
					return
				}
				if err := bridge.CommandStop(c.Args[0]); err != nil {
					c.Err(err)
				}
			},
		})

		shell.AddCmd(&ishell.Cmd{
			Name:      "activate",
			Completer: motorNames,
			Help:      "activate <motor>",
			Func: func(c *ishell.Context) {
				runMotorOp(c, bridge, motors.Activate)
			},
		})

		shell.AddCmd(&ishell.Cmd{
			Name:      "deactivate",
			Completer: motorNames,
			Help:      "deactivate <motor>",
			Func: func(c *ishell.Context) {
				runMotorOp(c, bridge, motors.Deactivate)
			},
		})

		shell.AddCmd(&ishell.Cmd{
			Name:      "loadparams",
			Completer: motorNames,
			Help:      "loadparams <motor>",
			Func: func(c *ishell.Context) {
				runMotorOp(c, bridge, motors.LoadParams)
			},
		})

		shell.AddCmd(&ishell.Cmd{
			Name: "status",
			Help: "show bridge counters",
			Func: func(c *ishell.Context) {
				stats := bridge.Stats()
				c.Printf("received: %d  ignored: %d  commands: %d  errors: %d\n",
					stats.Received, stats.Ignored, stats.Commands, stats.Errors)
			},
		})

		// Start an instance of the shell so it can be controlled from the CLI
		go shell.Start()
	}

	r := chi.NewRouter()

	// A good base middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.RedirectSlashes)
	r.Use(middleware.Recoverer) // make sure this is last

	//---
	// Build the API routes
	//---
	r.Route("/api", func(r chi.Router) {
		r.Get("/status", StatusHandler)
		r.Get("/journal", JournalHandler)

		r.Route("/motors/{motor}", func(r chi.Router) {
			r.Post("/move", MoveHandler)
			r.Post("/stop", StopHandler)
		})
	})

	// Add websocket routes
	r.Route("/ws", func(r chi.Router) {
		r.Get("/tail", TailHandler)
	})

	go func() {
		fmt.Println("Listening on port", *port)
		if err := http.ListenAndServe(*port, r); err != nil {
			log.Fatal(err)
		}
	}()

	// park the motors before going away
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	cancel()
	bridge.Shutdown()
	bus.Close()
	motors.Close()
}

func runMotorOp(c *ishell.Context, bridge *onboard.Bridge, op func(l91.MotorID) error) {
	if len(c.Args) != 1 {
		c.Err(fmt.Errorf("expected a motor name"))
		return
	}
	id, err := bridge.Resolve(c.Args[0])
	if err != nil {
		c.Err(err)
		return
	}
	if err := op(id); err != nil {
		c.Err(err)
	}
}
