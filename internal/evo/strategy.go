package evo

import "palaestra/internal/model"

// GeneticStrategy supplies the slot-selection policy for training matches
// and hooks invoked around each generation boundary.
type GeneticStrategy interface {
	// SelectTrainingGenes returns the genomes occupying the match slots for
	// the individual at the given counter position.
	SelectTrainingGenes(p *Population, counter int) []model.Genome
	OnPreNextGeneration(p *Population)
	OnPostNextGeneration(p *Population)
}

// SelfPlayStrategy fills every match slot with the genome under evaluation,
// so an individual always plays against itself.
type SelfPlayStrategy struct {
	Slots int
}

func (s SelfPlayStrategy) SelectTrainingGenes(p *Population, counter int) []model.Genome {
	g, err := p.GenomeAt(counter)
	if err != nil {
		return nil
	}
	out := make([]model.Genome, s.slots())
	for i := range out {
		out[i] = g
	}
	return out
}

func (SelfPlayStrategy) OnPreNextGeneration(*Population) {}

func (SelfPlayStrategy) OnPostNextGeneration(*Population) {}

func (s SelfPlayStrategy) slots() int {
	if s.Slots <= 0 {
		return 2
	}
	return s.Slots
}

// RoundRobinStrategy pits the genome under evaluation against the next
// individuals in rank order, wrapping at the end of the population.
type RoundRobinStrategy struct {
	Slots int
}

func (s RoundRobinStrategy) SelectTrainingGenes(p *Population, counter int) []model.Genome {
	n := p.Size()
	if n == 0 {
		return nil
	}
	slots := s.Slots
	if slots <= 0 {
		slots = 2
	}
	out := make([]model.Genome, 0, slots)
	for i := 0; i < slots; i++ {
		g, err := p.GenomeAt((counter + i) % n)
		if err != nil {
			return nil
		}
		out = append(out, g)
	}
	return out
}

func (RoundRobinStrategy) OnPreNextGeneration(*Population) {}

func (RoundRobinStrategy) OnPostNextGeneration(*Population) {}
