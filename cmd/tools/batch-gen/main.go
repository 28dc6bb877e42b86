// batch-gen sends synthetic point batches over UDP, for exercising the
// elevation mapper without a sensor. It sweeps a sinusoidal surface in the
// sensor frame at a fixed rate.
package main

import (
	"flag"
	"log"
	"math"
	"math/rand"
	"net"
	"time"

	"github.com/gstavrinos/elevation-mapping/internal/elevation"
	"github.com/gstavrinos/elevation-mapping/internal/elevation/network"
)

var (
	target    = flag.String("target", "localhost:8765", "UDP address of the elevation mapper")
	topic     = flag.String("topic", "/depth_registered/points_throttled", "Point stream topic")
	frameID   = flag.String("frame", "/camera_depth_optical_frame", "Sensor frame id")
	rate      = flag.Float64("rate", 5.0, "Batches per second")
	pointsPer = flag.Int("points", 500, "Points per batch")
	span      = flag.Float64("span", 4.0, "Side length of the square sampled area in meters")
	count     = flag.Int("count", 0, "Number of batches to send (0 = run until interrupted)")
)

func makeBatch(t float64) *elevation.PointBatch {
	points := make([]elevation.Point, 0, *pointsPer)
	for i := 0; i < *pointsPer; i++ {
		x := (rand.Float64() - 0.5) * *span
		y := (rand.Float64() - 0.5) * *span
		z := 0.2*math.Sin(x+t) + 0.1*math.Cos(y) + rand.NormFloat64()*0.02
		if z < 0 {
			z = 0
		}
		shade := uint8(128 + 100*math.Sin(x+t))
		points = append(points, elevation.Point{
			X: x, Y: y, Z: z,
			R: shade, G: shade, B: 200,
		})
	}
	return &elevation.PointBatch{
		FrameID: *frameID,
		Stamp:   time.Now(),
		Points:  points,
	}
}

func main() {
	flag.Parse()

	addr, err := net.ResolveUDPAddr("udp", *target)
	if err != nil {
		log.Fatalf("Failed to resolve %s: %v", *target, err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		log.Fatalf("Failed to dial %s: %v", *target, err)
	}
	defer conn.Close()

	interval := time.Duration(float64(time.Second) / *rate)
	log.Printf("Sending %d-point batches to %s every %s", *pointsPer, *target, interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sent := 0
	start := time.Now()
	for range ticker.C {
		batch := makeBatch(time.Since(start).Seconds())
		payload, err := network.MarshalBatch(*topic, batch)
		if err != nil {
			log.Fatalf("Failed to marshal batch: %v", err)
		}
		if _, err := conn.Write(payload); err != nil {
			log.Printf("Send failed: %v", err)
		}
		sent++
		if sent%100 == 0 {
			log.Printf("Sent %d batches", sent)
		}
		if *count > 0 && sent >= *count {
			break
		}
	}
	log.Printf("Done, sent %d batches", sent)
}
